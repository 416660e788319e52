package server

import (
	"net"
	"time"

	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

func listenLocal() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func hostUpdate(s *telemetry.Stats) collectors.Update {
	now := time.Now()
	return collectors.Update{
		Source:    SourceHost,
		Data:      &collectors.CollectResult{Collector: SourceHost, Timestamp: now, Data: s},
		Timestamp: now,
	}
}

func gpuUpdate(err error, devices ...telemetry.GPUDevice) collectors.Update {
	now := time.Now()
	u := collectors.Update{Source: SourceGPU, Timestamp: now, Error: err}
	if err == nil {
		if devices == nil {
			devices = []telemetry.GPUDevice{}
		}
		u.Data = &collectors.CollectResult{Collector: SourceGPU, Timestamp: now, Data: devices}
	}
	return u
}
