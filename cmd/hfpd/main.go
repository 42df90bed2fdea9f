//go:build linux

// Command hfpd is a thin driver over the core engine: register the HF
// service and then listen for inbound connections until the timeout,
// list nearby Audio Gateways, or dial a known peer, exactly the
// mode-flag/context/signal-handling shape of the
// teacher's cmd/connmgr-demo.
//
// Modes:
//
//	go run ./cmd/hfpd -mode=serve -timeout=5m
//	go run ./cmd/hfpd -mode=scan -timeout=15s
//	go run ./cmd/hfpd -mode=connect -device AA:BB:CC:DD:EE:FF -timeout=30s
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nohands-go/gonohands/hfpd"
	"github.com/nohands-go/gonohands/internal/bluez"
	"github.com/nohands-go/gonohands/internal/hci"
	"github.com/nohands-go/gonohands/internal/hfp"
)

func main() {
	mode := flag.String("mode", "serve", "mode: serve|scan|connect")
	device := flag.String("device", "", "remote device address, AA:BB:CC:DD:EE:FF (connect mode)")
	hciDev := flag.Int("hci", 0, "local HCI adapter index")
	timeout := flag.Duration("timeout", 30*time.Second, "operation timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	controller, err := hci.NewLocalController(*hciDev)
	if err != nil {
		log.Fatalf("open HCI adapter: %v", err)
	}

	bus := bluez.New(hfp.DefaultLocalFeatures)
	svc, err := hfpd.New(bus, controller)
	if err != nil {
		log.Fatalf("start service: %v", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Printf("close error: %v", err)
		}
	}()

	switch strings.ToLower(*mode) {
	case "serve":
		runServe(ctx, svc)
	case "scan":
		runScan(ctx, bus)
	case "connect":
		runConnect(ctx, svc, bus, *device)
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

func runServe(ctx context.Context, svc *hfpd.Service) {
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Start: %v", err)
	}
	log.Printf("listening for Hands-Free connections (timeout=%s)...", deadlineStr(ctx))
	<-ctx.Done()
	if err := ctx.Err(); err != nil {
		log.Printf("context done: %v", err)
	}
}

func runScan(ctx context.Context, bus bluez.Manager) {
	devs, err := bus.ScanHandsFree(ctx)
	if err != nil {
		log.Fatalf("ScanHandsFree: %v", err)
	}
	if len(devs) == 0 {
		log.Printf("no Audio Gateway devices found")
		return
	}
	for i, d := range devs {
		log.Printf("[%d] Path=%s Address=%s Name=%s Alias=%s", i, d.Path, d.Address, d.Name, d.Alias)
	}
}

func runConnect(ctx context.Context, svc *hfpd.Service, bus bluez.Manager, address string) {
	if address == "" {
		log.Fatal("-device is required in connect mode")
	}
	devs, err := bus.ScanHandsFree(ctx)
	if err != nil {
		log.Fatalf("ScanHandsFree: %v", err)
	}
	var target bluez.RemoteDevice
	found := false
	for _, d := range devs {
		if strings.EqualFold(d.Address, address) {
			target, found = d, true
			break
		}
	}
	if !found {
		log.Fatalf("device %s not found in scan results", address)
	}
	log.Printf("connecting to %s (timeout=%s)...", target.Address, deadlineStr(ctx))
	if err := svc.Dial(ctx, target); err != nil {
		log.Fatalf("Dial: %v", err)
	}
	log.Printf("connected to %s", target.Address)
	<-ctx.Done()
}

func deadlineStr(ctx context.Context) string {
	if d, ok := ctx.Deadline(); ok {
		return time.Until(d).Truncate(time.Second).String()
	}
	return "none"
}
