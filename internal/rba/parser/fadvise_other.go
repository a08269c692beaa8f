//go:build !linux

package parser

import "os"

func adviseSequential(*os.File) {}
