package main

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rescp17/pairLink/internal/app"
	"github.com/rescp17/pairLink/pkg/crypto"
	"github.com/rescp17/pairLink/pkg/discovery"
	"github.com/rescp17/pairLink/pkg/media"
	"github.com/rescp17/pairLink/pkg/peer"
	"github.com/rescp17/pairLink/pkg/signaling"
	"github.com/rescp17/pairLink/pkg/ui"
)

func main() {
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))

	var (
		serverURL string
		name      string
		selfID    string
		secret    string
		keyDir    string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "pairlink",
		Short: "Encrypted audio/video calls and messaging for local networks",
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Signaling server URL (ws://host:port/ws); discovered via mDNS when empty")
	cmd.PersistentFlags().StringVar(&name, "name", "", "Display name")
	cmd.PersistentFlags().StringVar(&selfID, "id", "", "Stable identity; random when empty")
	cmd.PersistentFlags().StringVar(&secret, "secret", "", "Server secret used to wrap the private key at rest; E2EE chat is disabled when empty")
	cmd.PersistentFlags().StringVar(&keyDir, "key-dir", "", "Directory for wrapped key storage")

	callCmd := &cobra.Command{
		Use:   "call",
		Short: "Start in call mode: dial a peer by id, or wait for incoming calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, displayName := identity(selfID, name)

			channel, err := connect(ctx, serverURL, id)
			if err != nil {
				return err
			}
			defer channel.Close()

			priv, err := loadPrivateKey(keyDir, secret)
			if err != nil {
				return err
			}

			controller := app.NewCallApp(app.CallConfig{
				SelfID:     id,
				SelfName:   displayName,
				Channel:    channel,
				Gateway:    newGateway(),
				LinkConfig: peer.Config{},
				PrivateKey: priv,
			})
			return runTUI(ui.InitialModel(ui.ModeCall, controller, displayName))
		},
	}

	joinCmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join an anonymous room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, displayName := identity(selfID, name)

			channel, err := connect(ctx, serverURL, id)
			if err != nil {
				return err
			}
			defer channel.Close()

			controller := app.NewRoomApp(app.RoomConfig{
				SelfID:     id,
				SelfName:   displayName,
				RoomID:     args[0],
				Channel:    channel,
				Gateway:    newGateway(),
				LinkConfig: peer.Config{},
			})
			return runTUI(ui.InitialModel(ui.ModeRoom, controller, displayName))
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling hub and advertise it over mDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

			hostname, _ := os.Hostname()
			go func() {
				adapter := &discovery.MDNSAdapter{}
				err := adapter.Announce(ctx, discovery.ServiceInfo{
					Name:   hostname,
					Type:   discovery.DefaultServiceType,
					Domain: discovery.DefaultDomain,
					Port:   port,
				})
				if err != nil {
					slog.Error("mDNS announce failed", "error", err)
				}
			}()

			hub := signaling.NewHub()
			defer hub.Close()
			return hub.ListenAndServe(fmt.Sprintf(":%d", port))
		},
	}
	serveCmd.Flags().IntVar(&port, "port", 9090, "Port to listen on")

	cmd.AddCommand(callCmd)
	cmd.AddCommand(joinCmd)
	cmd.AddCommand(serveCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

func identity(selfID, name string) (id, displayName string) {
	id = selfID
	if id == "" {
		id = uuid.New().String()
	}
	displayName = name
	if displayName == "" {
		displayName = id[:8]
	}
	return id, displayName
}

// connect resolves the hub address (flag or mDNS) and dials it.
func connect(ctx context.Context, serverURL, id string) (*signaling.WSChannel, error) {
	base := serverURL
	if base == "" {
		var err error
		if base, err = discoverHub(ctx); err != nil {
			return nil, err
		}
	}
	return signaling.DialWS(ctx, fmt.Sprintf("%s?id=%s", base, url.QueryEscape(id)), id)
}

func discoverHub(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	adapter := &discovery.MDNSAdapter{}
	service := fmt.Sprintf("%s.%s.", discovery.DefaultServiceType, discovery.DefaultDomain)
	for result := range adapter.Discover(ctx, service) {
		if result.Error != nil {
			return "", fmt.Errorf("hub discovery failed: %w", result.Error)
		}
		if len(result.Services) > 0 {
			return result.Services[0].WSURL(), nil
		}
	}
	return "", fmt.Errorf("no signaling hub found on the local network; use --server")
}

func loadPrivateKey(keyDir, secret string) (priv *rsa.PrivateKey, err error) {
	if secret == "" {
		return nil, nil
	}
	if keyDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		keyDir = filepath.Join(base, "pairlink")
	}
	store, err := crypto.NewKeyStore(keyDir, secret)
	if err != nil {
		return nil, err
	}
	return store.LoadOrCreate()
}

func newGateway() media.DeviceGateway {
	selector, err := newCodecSelector()
	if err != nil {
		slog.Warn("codec setup failed, running receive-only", "error", err)
		selector = nil
	}
	return media.NewGateway(selector)
}

func runTUI(model ui.Model) error {
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
