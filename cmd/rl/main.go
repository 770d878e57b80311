package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rescueline/internal/app"
	"rescueline/internal/config"
	"rescueline/internal/domain"
	"rescueline/internal/geo"
	"rescueline/internal/patient"
	"rescueline/internal/responder"
	"rescueline/internal/server"
	"rescueline/internal/store"
	"rescueline/internal/triage"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Rescueline CLI",
	Long: `Rescueline coordinates emergency rescues between a patient and a responder.
- Workspace: the .rescueline directory holding the shared store both roles poll.
- Submit: report symptoms; triage classifies them and a responder is dispatched
  with an estimated arrival time.
- Track: follow the active rescue until the responder arrives and completes it.
- Responder: watch for incoming requests and advance them (arrive, complete).
  Responder actions require the access code from rescueline.yml.
- Profile: saved medical details attached to submissions as a point-in-time
  snapshot.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := store.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("RESCUELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("access-code", "", "responder access code")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("access-code", rootCmd.PersistentFlags().Lookup("access-code"))
}

func registerCommands() {
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(activeCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(triageCmd())
	rootCmd.AddCommand(responderCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func submitCmd() *cobra.Command {
	var name, symptoms string
	var unconscious, useProfile, follow bool
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a rescue request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(symptoms) == "" {
				return fmt.Errorf("--symptoms required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				pc := patientController(a)
				ctx, cancel := signalContext(ctx)
				defer cancel()
				if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
					watcher := geo.Static{Coords: domain.Coordinates{Latitude: lat, Longitude: lon}}
					if err := pc.Location.Follow(ctx, watcher); err != nil {
						return err
					}
				}
				if werr := pc.Location.Err(); werr != nil {
					fmt.Println(werr.Kind.Message(), "Submitting without a position.")
				}
				req, err := pc.Submit(ctx, patient.SubmitOptions{
					Name:       name,
					Symptoms:   symptoms,
					Conscious:  !unconscious,
					UseProfile: useProfile,
				})
				if err != nil {
					return err
				}
				if !follow {
					return printJSONOrTable(req)
				}
				printRequestUpdate(req, a)
				err = pc.Track(ctx, req, func(r domain.RescueRequest) {
					printRequestUpdate(r, a)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "victim name (defaults to profile name)")
	cmd.Flags().StringVar(&symptoms, "symptoms", "", "reported symptoms")
	cmd.Flags().BoolVar(&unconscious, "unconscious", false, "victim is unconscious")
	cmd.Flags().BoolVar(&useProfile, "use-profile", false, "attach the saved profile snapshot")
	cmd.Flags().BoolVar(&follow, "follow", false, "track the request after submitting")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("symptoms")
	return cmd
}

func trackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Follow the active rescue request until completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := store.LoadRequest(ctx, a.Store)
				if err != nil {
					return err
				}
				if req == nil {
					return fmt.Errorf("no active rescue request")
				}
				pc := patientController(a)
				printRequestUpdate(*req, a)
				ctx, cancel := signalContext(ctx)
				defer cancel()
				err = pc.Track(ctx, *req, func(r domain.RescueRequest) {
					printRequestUpdate(r, a)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	return cmd
}

func activeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Show the active rescue request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := store.LoadRequest(ctx, a.Store)
				if err != nil {
					return err
				}
				if req == nil {
					fmt.Println("No active rescue request.")
					return nil
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past rescue requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := store.LoadHistory(ctx, a.Store)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "When", "Symptoms", "Severity", "Status"})
				for _, r := range items {
					severity := ""
					if r.Triage != nil {
						severity = string(r.Triage.Severity)
					}
					tw.AppendRow(table.Row{
						r.ID,
						r.CreatedAt().Local().Format("2006-01-02 15:04"),
						r.Victim.Symptoms,
						severity,
						r.Status,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func profileCmd() *cobra.Command {
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Manage the patient profile",
		Long:  "The profile holds medical details attached to submissions. Each request keeps the snapshot from submission time; later edits never rewrite past requests.",
	}
	profile.AddCommand(profileShowCmd())
	profile.AddCommand(profileSetCmd())
	return profile
}

func profileShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the saved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := store.LoadProfile(ctx, a.Store)
				if err != nil {
					return err
				}
				if p == nil {
					fmt.Println("No profile saved.")
					return nil
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func profileSetCmd() *cobra.Command {
	var p domain.PatientProfile
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save the profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(p.FullName) == "" {
				return fmt.Errorf("--name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				existing, err := store.LoadProfile(ctx, a.Store)
				if err != nil {
					return err
				}
				if existing != nil {
					merged := *existing
					merged.FullName = p.FullName
					if cmd.Flags().Changed("dob") {
						merged.DateOfBirth = p.DateOfBirth
					}
					if cmd.Flags().Changed("allergies") {
						merged.Allergies = p.Allergies
					}
					if cmd.Flags().Changed("conditions") {
						merged.MedicalConditions = p.MedicalConditions
					}
					if cmd.Flags().Changed("contact-name") {
						merged.Contact.Name = p.Contact.Name
					}
					if cmd.Flags().Changed("contact-phone") {
						merged.Contact.Phone = p.Contact.Phone
					}
					if cmd.Flags().Changed("contact-relation") {
						merged.Contact.Relation = p.Contact.Relation
					}
					p = merged
				}
				if err := store.SaveProfile(ctx, a.Store, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&p.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&p.DateOfBirth, "dob", "", "date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&p.Allergies, "allergies", "", "known allergies")
	cmd.Flags().StringVar(&p.MedicalConditions, "conditions", "", "medical conditions")
	cmd.Flags().StringVar(&p.Contact.Name, "contact-name", "", "emergency contact name")
	cmd.Flags().StringVar(&p.Contact.Phone, "contact-phone", "", "emergency contact phone")
	cmd.Flags().StringVar(&p.Contact.Relation, "contact-relation", "", "emergency contact relation")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func triageCmd() *cobra.Command {
	var symptoms string
	var unconscious bool
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Classify symptoms without submitting a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(symptoms) == "" {
				return fmt.Errorf("--symptoms required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				profile, err := store.LoadProfile(ctx, a.Store)
				if err != nil {
					return err
				}
				cls := triage.FromConfig(a.Config, nil)
				res, err := cls.Classify(ctx, symptoms, !unconscious, profile)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&symptoms, "symptoms", "", "symptoms to classify")
	cmd.Flags().BoolVar(&unconscious, "unconscious", false, "victim is unconscious")
	_ = cmd.MarkFlagRequired("symptoms")
	return cmd
}

func responderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responder",
		Short: "Responder-side operations",
		Long:  "Watch for incoming rescue requests and advance them. All responder commands require the workspace access code (--access-code or RESCUELINE_ACCESS_CODE).",
	}
	cmd.AddCommand(responderWatchCmd())
	cmd.AddCommand(responderAdvanceCmd("arrive", "Mark the responder as arrived", domain.StatusArrived))
	cmd.AddCommand(responderAdvanceCmd("complete", "Mark the rescue as completed", domain.StatusCompleted))
	return cmd
}

func responderWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch for incoming rescue requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withResponder(cmd.Context(), func(ctx context.Context, a *app.App, rc *responder.Controller) error {
				fmt.Println("Watching for rescue requests. Ctrl-C to stop.")
				ctx, cancel := signalContext(ctx)
				defer cancel()
				err := rc.Watch(ctx, func(r *domain.RescueRequest) {
					if r == nil {
						fmt.Println("Board clear: no active rescue request.")
						return
					}
					printRequestUpdate(*r, a)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	return cmd
}

func responderAdvanceCmd(use, short string, status domain.Status) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withResponder(cmd.Context(), func(ctx context.Context, a *app.App, rc *responder.Controller) error {
				target := id
				if target == "" {
					cur, err := store.LoadRequest(ctx, a.Store)
					if err != nil {
						return err
					}
					if cur == nil {
						return fmt.Errorf("no active rescue request")
					}
					target = cur.ID
				}
				var req domain.RescueRequest
				var err error
				if status == domain.StatusArrived {
					req, err = rc.Arrive(ctx, target)
				} else {
					req, err = rc.Complete(ctx, target)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "request id (defaults to the active request)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of every lifecycle change: submissions, arrivals, completions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var requestID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Events.Latest(ctx, n, requestID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default rescueline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				secret := a.Config.Server.JWTSecret
				if env := os.Getenv("RESCUELINE_JWT_SECRET"); env != "" {
					secret = env
				}
				if secret == "" {
					return fmt.Errorf("RESCUELINE_JWT_SECRET or server.jwt_secret is required for responder auth")
				}
				handler, err := server.New(server.Config{
					Engine:     a.Engine,
					Store:      a.Store,
					Classifier: triage.FromConfig(a.Config, nil),
					BasePath:   basePath,
					Auth: server.AuthConfig{
						JWTSecret:  secret,
						AccessCode: a.Config.Responder.AccessCode,
						SessionTTL: time.Duration(a.Config.Server.SessionTTLMinutes) * time.Minute,
					},
					PollInterval: a.PollInterval(),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				ctx, cancel := signalContext(ctx)
				defer cancel()
				go func() {
					<-ctx.Done()
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Rescueline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withResponder(ctx context.Context, fn func(context.Context, *app.App, *responder.Controller) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		code := viper.GetString("access-code")
		if code != a.Config.Responder.AccessCode {
			return fmt.Errorf("invalid access code; pass --access-code or set RESCUELINE_ACCESS_CODE")
		}
		rc := &responder.Controller{
			Store:    a.Store,
			Engine:   a.Engine,
			Interval: a.PollInterval(),
		}
		return fn(ctx, a, rc)
	})
}

func patientController(a *app.App) *patient.Controller {
	return &patient.Controller{
		Store:      a.Store,
		Engine:     a.Engine,
		Classifier: triage.FromConfig(a.Config, nil),
		Location:   &geo.Tracker{},
		Interval:   a.PollInterval(),
	}
}

func printRequestUpdate(r domain.RescueRequest, a *app.App) {
	if viper.GetBool("json") {
		_ = printJSON(r)
		return
	}
	switch r.Status {
	case domain.StatusDispatched:
		fmt.Printf("[%s] Responder dispatched, ETA %d min (request %s)\n",
			time.Now().Format("15:04:05"), r.RemainingETA(time.Now()), r.ID)
	case domain.StatusArrived:
		fmt.Printf("[%s] Responder has arrived (request %s)\n", time.Now().Format("15:04:05"), r.ID)
	case domain.StatusCompleted:
		fmt.Printf("[%s] Rescue completed (request %s)\n", time.Now().Format("15:04:05"), r.ID)
	default:
		fmt.Printf("[%s] Request %s is %s\n", time.Now().Format("15:04:05"), r.ID, r.Status)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
