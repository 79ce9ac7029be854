//go:build !linux

package main

import "fmt"

func lockMemory() error {
	return fmt.Errorf("mlock is not implemented on this platform")
}
