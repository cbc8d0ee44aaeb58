//go:build linux

package main

import (
	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/hal/linux"
)

func kernelDriver() (hal.Driver, error) {
	return linux.NewDriver(), nil
}
