// Package dedupe tracks recently issued keys for a fixed window so the same
// key is not handed out twice while late replies addressed to it may still arrive.
package dedupe
