//go:build !linux

package main

import (
	"errors"

	"github.com/fwctl/fwctl-go/pkg/hal"
)

func kernelDriver() (hal.Driver, error) {
	return nil, errors.New("the kernel backend requires Linux; use -simulate")
}
