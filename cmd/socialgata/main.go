// Package main is the entry point for the socialgata CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/infogata/socialgata/internal/broadcast"
	"github.com/infogata/socialgata/internal/cloudsync"
	"github.com/infogata/socialgata/internal/favorites"
	"github.com/infogata/socialgata/internal/plugin"
	"github.com/infogata/socialgata/internal/plugintypes"
	"github.com/infogata/socialgata/internal/service"
	"github.com/infogata/socialgata/internal/storage"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the wired subsystems behind every command.
type app struct {
	store     *storage.Store
	registry  *plugin.Registry
	services  *service.Cache
	hub       *broadcast.Hub
	favorites *favorites.Store
	sync      *cloudsync.Manager
}

func openApp(dataDir string) (*app, error) {
	store, err := storage.Open(dataDir)
	if err != nil {
		return nil, err
	}

	hub := broadcast.NewHub()
	fav, err := favorites.NewStore(dataDir, store, hub)
	if err != nil {
		return nil, err
	}

	registry := plugin.NewRegistry(store, plugin.RegistryConfig{
		Client: &http.Client{Timeout: 30 * time.Second},
	})

	mgr := cloudsync.NewManager(fav)
	if clientID := os.Getenv("SOCIALGATA_DROPBOX_CLIENT_ID"); clientID != "" {
		mgr.BindProvider(cloudsync.NewDropbox(nil, store, clientID))
	}

	return &app{
		store:     store,
		registry:  registry,
		services:  service.NewCache(registry),
		hub:       hub,
		favorites: fav,
		sync:      mgr,
	}, nil
}

func (a *app) close() {
	a.registry.Close()
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "socialgata")
	}
	return ".socialgata"
}

func newRootCmd() *cobra.Command {
	var dataDir string
	var a *app

	root := &cobra.Command{
		Use:           "socialgata",
		Short:         "Plugin-driven social platform aggregator",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = openApp(dataDir)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory holding plugins and favorites")

	root.AddCommand(
		newPluginsCmd(&a),
		newFeedCmd(&a),
		newFavoritesCmd(&a),
		newSyncCmd(&a),
		newServeCmd(&a),
	)
	return root
}

func newPluginsCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage installed plugins",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed plugins and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*a).registry.ReloadPlugins(cmd.Context()); err != nil {
				return err
			}
			for _, h := range (*a).registry.Plugins() {
				m := h.Manifest()
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					m.ID, m.Name, h.PlatformType(), h.State())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <manifest-url>",
		Short: "Install a plugin from a manifest URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := (*a).registry.AddPluginFromURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%s)\n", host.Manifest().Name, host.ID())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <plugin-id>",
		Short: "Uninstall a plugin and its credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*a).registry.ReloadPlugins(cmd.Context()); err != nil {
				return err
			}
			return (*a).registry.DeletePlugin(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reload every installed plugin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*a).registry.ReloadPlugins(cmd.Context())
		},
	})

	return cmd
}

func newFeedCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "feed <plugin-id>",
		Short: "Fetch a plugin's home feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*a).registry.ReloadPlugins(cmd.Context()); err != nil {
				return err
			}
			svc, err := (*a).services.Service(args[0])
			if err != nil {
				return err
			}
			resp, err := svc.GetFeed(cmd.Context(), &plugintypes.GetFeedRequest{})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}

func newFavoritesCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage saved items",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [kind]",
		Short: "List saved items, optionally of one kind",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := favorites.Kinds
			if len(args) == 1 {
				kinds = []favorites.Kind{favorites.Kind(args[0])}
			}
			for _, kind := range kinds {
				for key := range (*a).favorites.List(kind) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", kind, key)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <kind> <plugin-id> <item-id>",
		Short: "Save an item, or remove it if already saved",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := favorites.Kind(args[0])
			item := map[string]any{"apiId": args[2]}
			saved, err := (*a).favorites.Toggle(kind, args[1], args[2], item)
			if err != nil {
				return err
			}
			if saved {
				fmt.Fprintln(cmd.OutOrStdout(), "saved")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "removed")
			}
			return nil
		},
	})

	return cmd
}

func newSyncCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync favorites with the cloud provider",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Run one sync cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*a).sync.SyncNow(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "upload",
		Short: "Upload the local favorites without merging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*a).sync.UploadNow(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "download",
		Short: "Merge the remote favorites without uploading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*a).sync.DownloadNow(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := (*a).sync
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", mgr.Status())
			if t := mgr.LastSyncTime(); !t.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "last sync: %s\n", t.Format(time.RFC3339))
			}
			if err := mgr.LastError(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "last error: %v\n", err)
			}
			return nil
		},
	})

	return cmd
}

func newServeCmd(a **app) *cobra.Command {
	var addr string
	var syncInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the change-notification server and periodic sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := (*a).registry.Preinstall(ctx); err != nil {
				return err
			}

			go (*a).hub.Run(ctx)

			watcher, err := favorites.NewWatcher((*a).favorites)
			if err != nil {
				return err
			}
			go watcher.Run(ctx)

			if syncInterval > 0 {
				(*a).sync.StartPeriodicSync(ctx, syncInterval)
				defer (*a).sync.StopPeriodicSync()
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", (*a).hub.ServeWS)

			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8747", "listen address")
	cmd.Flags().DurationVar(&syncInterval, "sync-interval", 0, "periodic sync interval (0 disables)")
	return cmd
}
