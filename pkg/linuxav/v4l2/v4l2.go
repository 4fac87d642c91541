//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for video output devices, with support for the UVC gadget function
// exposed by the kernel's configfs USB gadget framework.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Discovery
//
// Use FindOutputNode to locate the UVC gadget's output node:
//
//	info, err := v4l2.FindOutputNode(nil)
//	if err == nil {
//	    fmt.Printf("%s: %s\n", info.DevicePath, info.DeviceName)
//	}
//
// # Gadget Event Loop
//
// Open the node, subscribe to gadget events, and service them:
//
//	dev, _ := v4l2.OpenOutput(info.DevicePath)
//	defer dev.Close()
//	dev.SubscribeGadgetEvents()
//	for {
//	    ev, err := dev.DequeueEvent()
//	    if err != nil {
//	        break
//	    }
//	    switch ev.Type {
//	    case v4l2.EventSetup:
//	        // decode ev.Setup, answer with dev.SendResponse
//	    }
//	}
//
// # Streaming
//
// Buffers are negotiated with RequestBuffers, mapped with MapBuffer, and
// cycled with QueueBuffer/DequeueBuffer between StreamOn and StreamOff.
package v4l2
