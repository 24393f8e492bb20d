// watch tails the quadlink dashboard stream from a terminal.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/hri-lab/go-quadlink/pkg/telemetry"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "dashboard host:port")
	flag.Parse()

	url := fmt.Sprintf("ws://%s/ws/status", *addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to %s: %v\n", url, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("watching %s\n", url)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		conn.Close()
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "stream closed: %v\n", err)
			os.Exit(1)
		}
		printEvent(data)
	}
}

func printEvent(data []byte) {
	var ev telemetry.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		fmt.Printf("?? %s\n", data)
		return
	}

	switch ev.Type {
	case telemetry.EventPose:
		var pose telemetry.PoseData
		if err := json.Unmarshal(ev.Data, &pose); err != nil {
			return
		}
		battery := "-"
		if pose.Battery != nil {
			battery = fmt.Sprintf("%.0f%%", *pose.Battery)
		}
		fmt.Printf("pose   (%.2f, %.2f, %.2f) heading=%.1f status=%s dist=%.2fm battery=%s\n",
			pose.Position.X, pose.Position.Y, pose.Position.Z,
			pose.HeadingDeg, pose.Status, pose.DistanceTraveled, battery)

	case telemetry.EventPath:
		var path telemetry.PathData
		if err := json.Unmarshal(ev.Data, &path); err != nil {
			return
		}
		fmt.Printf("path   %d waypoints\n", len(path.Waypoints))

	case telemetry.EventLink:
		var link telemetry.LinkData
		if err := json.Unmarshal(ev.Data, &link); err != nil {
			return
		}
		fmt.Printf("link   connected=%v\n", link.Connected)

	default:
		fmt.Printf("%s %s\n", ev.Type, ev.Data)
	}
}
