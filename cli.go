package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"hunterlog/adif"
	"hunterlog/config"
	"hunterlog/hunt"
	"hunterlog/pota"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// rootOptions carries state shared by every subcommand.
type rootOptions struct {
	configPath string
	cfg        *config.Config
	logs       *logFanout
	open       func(*config.Config) (*app, error)
}

// Purpose: Build the hunterlog command tree.
// Key aspects: Config and logging are set up once in PersistentPreRunE;
// each command opens the store through withApp and closes it on return.
// Output is JSON on stdout; logs go to stderr and the optional file sink.
// Upstream: main.
// Downstream: every new*Cmd constructor.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{open: openApp}
	root := &cobra.Command{
		Use:          "hunterlog",
		Short:        "Parks on the Air hunter logger",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			fanout, err := setupLogging(cfg.Logging, cmd.ErrOrStderr(), isStdoutTTY())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "logging: %v\n", err)
			}
			opts.logs = fanout
			log.SetFlags(0)
			log.SetOutput(fanout)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logs != nil {
				_ = opts.logs.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (env "+envConfigPath+", default "+defaultConfigPath+")")

	root.AddCommand(
		newLogCmd(opts),
		newExportCmd(opts),
		newImportADIFCmd(opts),
		newReconcileCmd(opts),
		newCatchUpCmd(opts),
		newParkCmd(opts),
		newHuntsCmd(opts),
		newActivatorCmd(opts),
		newSpotsCmd(opts),
		newCommentsCmd(opts),
		newLocationsCmd(opts),
		newDownloadParksCmd(opts),
		newPostSpotCmd(opts),
		newParkExportCmd(opts),
		newParkImportCmd(opts),
		newAlertsCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *rootOptions) withApp(fn func(a *app) error) error {
	a, err := o.open(o.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func newLogCmd(opts *rootOptions) *cobra.Command {
	var in hunt.ContactInput
	var spotID int64
	var jsonPath string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a hunted contact",
		Long: `Log a hunted contact: count the hunt, store the QSO, append it to the
ADIF backup, send it to the logging peer over UDP and refresh spots.

The contact comes from flags, from a JSON file (--json, "-" for stdin) or is
prefilled from a stored spot (--spot). Flags override prefilled values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				var base hunt.ContactInput
				if jsonPath != "" {
					loaded, err := readContactJSON(jsonPath, cmd.InOrStdin())
					if err != nil {
						return err
					}
					base = loaded
				}
				if spotID > 0 {
					fromSpot, ok := a.pipeline.ContactFromSpot(spotID)
					if !ok {
						return fmt.Errorf("spot %d not found; run 'hunterlog spots' first", spotID)
					}
					base = fromSpot
				}
				res := a.pipeline.LogContact(cmd.Context(), mergeContact(base, in))
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Call, "call", "", "activator callsign")
	f.StringVar(&in.SigInfo, "ref", "", "park reference (sig_info)")
	f.StringVar(&in.Freq, "freq", "", "frequency in kHz")
	f.StringVar(&in.Mode, "mode", "", "mode")
	f.StringVar(&in.RSTSent, "rst-sent", "", "report sent")
	f.StringVar(&in.RSTRecv, "rst-recv", "", "report received")
	f.StringVar(&in.QSODate, "date", "", "QSO date (YYYY-MM-DD, default now)")
	f.StringVar(&in.TimeOn, "time", "", "QSO time UTC (HH:MM[:SS])")
	f.StringVar(&in.Gridsquare, "grid", "", "activator grid square")
	f.StringVar(&in.Name, "name", "", "activator name")
	f.StringVar(&in.State, "state", "", "activator state")
	f.StringVar(&in.Comment, "comment", "", "comment")
	f.StringVar(&in.Sig, "sig", "", "special interest group (default POTA)")
	f.Int64Var(&spotID, "spot", 0, "prefill from a stored spot id")
	f.StringVar(&jsonPath, "json", "", "read the contact from a JSON file")
	return cmd
}

func readContactJSON(path string, stdin io.Reader) (hunt.ContactInput, error) {
	var in hunt.ContactInput
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return in, fmt.Errorf("read contact: %w", err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("parse contact: %w", err)
	}
	return in, nil
}

// mergeContact overlays every non-empty field of over onto base.
func mergeContact(base, over hunt.ContactInput) hunt.ContactInput {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&base.Call, over.Call)
	pick(&base.Name, over.Name)
	pick(&base.State, over.State)
	pick(&base.RSTSent, over.RSTSent)
	pick(&base.RSTRecv, over.RSTRecv)
	pick(&base.Freq, over.Freq)
	pick(&base.Band, over.Band)
	pick(&base.Mode, over.Mode)
	pick(&base.QSODate, over.QSODate)
	pick(&base.TimeOn, over.TimeOn)
	pick(&base.Gridsquare, over.Gridsquare)
	pick(&base.Sig, over.Sig)
	pick(&base.SigInfo, over.SigInfo)
	pick(&base.Comment, over.Comment)
	if over.Distance != 0 || over.Bearing != 0 {
		base.Distance, base.Bearing = over.Distance, over.Bearing
	}
	return base
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export contacts logged by hunterlog to a timestamped ADIF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				qsos, err := a.store.QSOs(true)
				if err != nil {
					return err
				}
				path, err := adif.ExportAll(qsos, a.station(), a.cfg.Data.ExportDir, time.Now())
				if err != nil {
					return printJSON(cmd.OutOrStdout(), hunt.Result{Message: err.Error()})
				}
				return printJSON(cmd.OutOrStdout(), hunt.Result{
					Success: true,
					Message: fmt.Sprintf("exported %s qsos to %s", humanize.Comma(int64(len(qsos))), path),
					Count:   len(qsos),
				})
			})
		},
	}
}

func newImportADIFCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-adif <file>",
		Short: "Import POTA contacts from an ADIF log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				qsos, skipped, err := adif.ReadFile(args[0])
				if err != nil {
					return err
				}
				log.Printf("adif: %s POTA records in %s, %s skipped",
					humanize.Comma(int64(len(qsos))), args[0], humanize.Comma(int64(skipped)))
				return printJSON(cmd.OutOrStdout(), a.pipeline.ImportQSOs(qsos))
			})
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <count-file>",
		Short: "Overwrite hunt counts from a POTA hunter export (CSV) or JSON map, then fill park metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				return printJSON(cmd.OutOrStdout(), a.reconciler.ReconcileFromCountFile(cmd.Context(), args[0]))
			})
		},
	}
}

func newCatchUpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catchup",
		Short: "Fetch metadata for every park that has none yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				return printJSON(cmd.OutOrStdout(), a.reconciler.CatchUpAllMetadata(cmd.Context()))
			})
		},
	}
}

func newParkCmd(opts *rootOptions) *cobra.Command {
	var pull bool
	cmd := &cobra.Command{
		Use:   "park <reference>",
		Short: "Show a park, fetching its metadata when it has none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				p := a.policy.Park(cmd.Context(), args[0], pull)
				if p == nil {
					return printJSON(cmd.OutOrStdout(), hunt.Result{Message: "park not found: " + args[0]})
				}
				return printJSON(cmd.OutOrStdout(), newParkView(*p))
			})
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", true, "fetch the park from POTA when it is not stored")
	return cmd
}

func newHuntsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hunts <reference>",
		Short: "Show how many times a park has been hunted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				n, err := a.store.ParkHunts(args[0])
				if err != nil {
					log.Printf("store: park hunts %s: %v", args[0], err)
					return printJSON(cmd.OutOrStdout(), huntCount{})
				}
				return printJSON(cmd.OutOrStdout(), huntCount{Success: true, Count: n})
			})
		},
	}
}

func newActivatorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activator <callsign>",
		Short: "Show an activator's POTA stats, refreshing them per the freshness policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				act := a.policy.Activator(cmd.Context(), args[0])
				if act == nil {
					return printJSON(cmd.OutOrStdout(), hunt.Result{Message: "activator does not exists in POTA"})
				}
				return printJSON(cmd.OutOrStdout(), newActivatorView(*act, time.Now()))
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hunts <callsign>",
		Short: "Count stored contacts with an activator, portable suffixes included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				n, err := a.store.ActivatorHunts(args[0])
				if err != nil {
					log.Printf("store: activator hunts %s: %v", args[0], err)
					return printJSON(cmd.OutOrStdout(), huntCount{})
				}
				return printJSON(cmd.OutOrStdout(), huntCount{Success: true, Count: n})
			})
		},
	})
	return cmd
}

func newSpotsCmd(opts *rootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "spots",
		Short: "Refresh the stored spot snapshot from POTA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				spots := a.client.Spots(cmd.Context())
				if spots == nil {
					return printJSON(cmd.OutOrStdout(), hunt.Result{Message: "spot list unavailable"})
				}
				if err := a.store.ReplaceSpots(spots); err != nil {
					return err
				}
				a.spotsChanged()
				if list {
					return printJSON(cmd.OutOrStdout(), spots)
				}
				return printJSON(cmd.OutOrStdout(), hunt.Result{
					Success: true,
					Message: fmt.Sprintf("stored %s spots", humanize.Comma(int64(len(spots)))),
					Count:   len(spots),
				})
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the spots instead of a summary")
	return cmd
}

func newCommentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comments <activator> <reference>",
		Short: "Fetch and store the spot comments of one activation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				comments := a.client.SpotComments(cmd.Context(), args[0], args[1])
				if comments == nil {
					return printJSON(cmd.OutOrStdout(), hunt.Result{Message: "spot comments unavailable"})
				}
				if err := a.store.ReplaceSpotComments(args[0], args[1], comments); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), comments)
			})
		},
	}
}

func newLocationsCmd(opts *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "locations [descriptor-prefix]",
		Short: "Load the POTA location list and search it by descriptor prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				if !offline {
					programs := a.client.Locations(cmd.Context())
					if programs == nil {
						return printJSON(cmd.OutOrStdout(), hunt.Result{Message: "location list unavailable"})
					}
					n, err := a.store.LoadLocations(programs)
					if err != nil {
						return err
					}
					log.Printf("locations: stored %s locations", humanize.Comma(int64(n)))
				}
				if len(args) == 0 {
					return nil
				}
				rows, err := a.store.Locations(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "search the stored list without downloading")
	return cmd
}

func newDownloadParksCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "download-parks <location>",
		Short: "Download the park list of a location (e.g. US-CA) into the data dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				area := strings.TrimSpace(args[0])
				status := a.client.DownloadParks(cmd.Context(), area, force)
				return printJSON(cmd.OutOrStdout(), areaResult(status, a.client.AreaPath(area)))
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "download even when the file exists")
	return cmd
}

func areaResult(status pota.AreaStatus, path string) hunt.Result {
	switch {
	case status == pota.AreaAlreadyPresent:
		return hunt.Result{Success: true, Message: "already downloaded: " + path}
	case status == pota.AreaUnreachable:
		return hunt.Result{Message: "park list download failed"}
	case status >= 200 && status < 300:
		return hunt.Result{Success: true, Message: "saved " + path}
	default:
		return hunt.Result{Message: fmt.Sprintf("park list download failed (status %d)", int(status))}
	}
}

func newPostSpotCmd(opts *rootOptions) *cobra.Command {
	var sub pota.SpotSubmission
	cmd := &cobra.Command{
		Use:   "post-spot",
		Short: "Post a spot or re-spot for an activation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(sub.Spotter) == "" {
				sub.Spotter = opts.cfg.Station.Callsign
			}
			if sub.Activator == "" || sub.Reference == "" || sub.Frequency == "" || sub.Spotter == "" {
				return errors.New("post-spot needs --activator, --ref, --freq and a spotter (flag or station.callsign)")
			}
			return opts.withApp(func(a *app) error {
				code := a.client.PostSpot(cmd.Context(), sub)
				return printJSON(cmd.OutOrStdout(), hunt.Result{
					Success: code >= 200 && code < 300,
					Message: fmt.Sprintf("spot post returned %d", code),
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&sub.Activator, "activator", "", "activator callsign")
	f.StringVar(&sub.Reference, "ref", "", "park reference")
	f.StringVar(&sub.Frequency, "freq", "", "frequency in kHz")
	f.StringVar(&sub.Mode, "mode", "", "mode")
	f.StringVar(&sub.Spotter, "spotter", "", "spotter callsign (default station.callsign)")
	f.StringVar(&sub.Comments, "comments", "", "spot comment")
	return cmd
}

func newParkExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "park-export [file]",
		Short: "Write every stored park to a JSON file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.Data.ParkExport
			if len(args) == 1 {
				path = args[0]
			}
			return opts.withApp(func(a *app) error {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				n, err := a.store.ExportParks(f)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), hunt.Result{
					Success: true,
					Message: fmt.Sprintf("exported %s parks to %s", humanize.Comma(int64(n)), path),
					Count:   n,
				})
			})
		},
	}
}

func newParkImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "park-import [file]",
		Short: "Load parks (metadata and hunt counts) from a park-export file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.Data.ParkExport
			if len(args) == 1 {
				path = args[0]
			}
			return opts.withApp(func(a *app) error {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				n, err := a.store.ImportParks(f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), hunt.Result{
					Success: true,
					Message: fmt.Sprintf("imported %s parks from %s", humanize.Comma(int64(n)), path),
					Count:   n,
				})
			})
		},
	}
}

func newAlertsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage location alerts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <location-prefix>",
		Short: "Alert on spots whose location starts with a prefix (e.g. US-ME)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				id, err := a.store.AddAlert(args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), hunt.Result{Success: true, Message: fmt.Sprintf("added alert %d", id)})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Match enabled alerts against the stored spot snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				matches, err := a.store.CheckAlerts()
				if err != nil {
					return err
				}
				out := map[string]*pota.Spot{}
				for _, m := range matches {
					out[m.Key()] = m.Spot
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	})
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.cfg.Print()
		},
	}
}
