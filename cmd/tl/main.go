// Command tl is a short alias for taskloom.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// findTaskloom prefers a taskloom binary installed next to tl, so the two
// stay in step when several versions are on PATH.
func findTaskloom() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "taskloom")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return sibling, nil
		}
	}
	return exec.LookPath("taskloom")
}

func main() {
	bin, err := findTaskloom()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tl: taskloom not found next to tl or on PATH")
		os.Exit(1)
	}
	if err := syscall.Exec(bin, append([]string{"taskloom"}, os.Args[1:]...), os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "tl: %v\n", err)
		os.Exit(1)
	}
}
