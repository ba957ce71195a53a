//go:build !unix

package cache

import "os"

// Without flock only the in-process mutex serializes writers.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
