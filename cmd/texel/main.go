// Package main provides the texel CLI.
package main

import (
	"fmt"
	"os"

	"github.com/texel-ml/texel/device/webgpu"
)

const version = "v0.0.1-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("texel %s\n", version)
			return
		case "probe":
			probe()
			return
		}
	}

	fmt.Println("texel - GPU texture-backed tensor storage")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  probe      Probe WebGPU availability")
}

func probe() {
	if !webgpu.IsAvailable() {
		fmt.Println("WebGPU: not available")
		os.Exit(1)
	}
	dev, err := webgpu.New()
	if err != nil {
		fmt.Printf("WebGPU: %v\n", err)
		os.Exit(1)
	}
	defer dev.Release()

	fmt.Printf("Adapter:          %s\n", dev.Name())
	fmt.Printf("Max texture size: %d\n", dev.MaxTextureSize())
}
