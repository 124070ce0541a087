package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/chairlink/infra/discovery"
	"github.com/kilianp07/chairlink/infra/logger"
	"github.com/kilianp07/chairlink/internal/fakepeer"
)

var (
	peerChair        string
	peerEndpointFile string
	peerDrive        string
	peerListenHost   string
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Act as a headset over the tcp transport for bench testing",
	RunE:  runPeer,
}

func init() {
	f := peerCmd.Flags()
	f.StringVar(&peerChair, "chair", "", "host:port of the chair publisher")
	f.StringVar(&peerEndpointFile, "endpoint-file", "", "read the chair endpoint from an announce file")
	f.StringVar(&peerDrive, "drive", "", "joystick position \"x,y\" sent every 100ms")
	f.StringVar(&peerListenHost, "listen", "0.0.0.0", "host the peer publisher binds")
	rootCmd.AddCommand(peerCmd)
}

func runPeer(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	chair, err := chairEndpoint(peerChair, peerEndpointFile)
	if err != nil {
		return err
	}
	var drive *[2]float32
	if peerDrive != "" {
		x, y, err := parsePair(peerDrive)
		if err != nil {
			return fmt.Errorf("--drive: %w", err)
		}
		drive = &[2]float32{x, y}
	}

	p, err := fakepeer.Start(fakepeer.Config{Chair: chair, ListenHost: peerListenHost}, logger.New("peer"))
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	first, err := p.Handshake(ctx)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	fmt.Fprintln(out, fakepeer.Describe(first))
	go p.Heartbeats(ctx)

	lastDrive := time.Time{}
	for ctx.Err() == nil {
		if drive != nil && time.Since(lastDrive) >= 100*time.Millisecond {
			if err := p.Joystick(drive[0], drive[1]); err != nil {
				return err
			}
			lastDrive = time.Now()
		}
		m, ok, err := p.Receive(50 * time.Millisecond)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(out, fakepeer.Describe(m))
		}
	}
	return nil
}

func chairEndpoint(chair, file string) (string, error) {
	switch {
	case chair != "":
		return chair, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		var r discovery.Record
		if err := json.Unmarshal(data, &r); err != nil {
			return "", fmt.Errorf("parse %s: %w", file, err)
		}
		if r.Address == "" || r.Port == 0 {
			return "", fmt.Errorf("%s: incomplete endpoint", file)
		}
		return net.JoinHostPort(r.Address, strconv.Itoa(r.Port)), nil
	default:
		return "", fmt.Errorf("one of --chair or --endpoint-file is required")
	}
}

func parsePair(s string) (float32, float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 32)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 32)
	if err != nil {
		return 0, 0, err
	}
	return float32(x), float32(y), nil
}
