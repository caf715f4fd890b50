package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openharbor-io/beacon/pkg/client"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL string
	authToken   string
	cfgFile     string
	insecure    bool
	jsonOut     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beaconctl",
	Short: "Beacon registry CLI",
	Long: `beaconctl manages MCP servers and A2A agents on a Beacon registry:
register and toggle entities, run hybrid search, trigger federation syncs,
and inspect security scan results.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.beaconctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("beacon")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "http://localhost:8080"
		}
		if authToken == "" {
			authToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.beaconctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "registry URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (or BEACON_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (development only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON instead of tables")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(federationCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if authToken != "" {
		opts = append(opts, client.WithToken(authToken))
	}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	return client.New(registryURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func enabledMark(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:       "list <servers|agents>",
	Short:     "List registered servers or agents",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"servers", "agents"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := newClient()

		switch args[0] {
		case "servers":
			servers, err := c.ListServers(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(servers)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tNAME\tSTATE\tHEALTH\tTOOLS\tSTARS")
			for _, s := range servers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1f\n",
					s.Path, s.ServerName, enabledMark(s.IsEnabled), s.HealthStatus, s.NumTools, s.NumStars)
			}
			return w.Flush()
		case "agents":
			agents, err := c.ListAgents(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(agents)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tNAME\tSTATE\tVISIBILITY\tTRUST\tSTARS")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\n",
					a.Path, a.Name, enabledMark(a.IsEnabled), a.Visibility, a.TrustLevel, a.NumStars)
			}
			return w.Flush()
		default:
			return fmt.Errorf("unknown entity kind %q (want servers or agents)", args[0])
		}
	},
}

// ── get ──────────────────────────────────────────────────────────────────────

var getAgent bool

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Show one server (or agent with --agent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := newClient()
		if getAgent {
			a, err := c.GetAgent(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(a)
		}
		s, err := c.GetServer(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

func init() {
	getCmd.Flags().BoolVar(&getAgent, "agent", false, "look up an agent instead of a server")
}

// ── register ─────────────────────────────────────────────────────────────────

var (
	registerFile  string
	registerAgent bool
)

var registerCmd = &cobra.Command{
	Use:   "register -f entity.json",
	Short: "Register a server (or agent with --agent) from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if registerFile == "" {
			return fmt.Errorf("--file is required")
		}
		raw, err := os.ReadFile(registerFile)
		if err != nil {
			return err
		}

		ctx := context.Background()
		c := newClient()

		if registerAgent {
			var req client.RegisterAgentRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("parse %s: %w", registerFile, err)
			}
			a, err := c.RegisterAgent(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("registered agent %s\n", a.Path)
			return nil
		}

		var req client.RegisterServerRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("parse %s: %w", registerFile, err)
		}
		s, err := c.RegisterServer(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("registered server %s\n", s.Path)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVarP(&registerFile, "file", "f", "", "JSON file with the registration payload")
	registerCmd.Flags().BoolVar(&registerAgent, "agent", false, "register an agent instead of a server")
}

// ── toggle ───────────────────────────────────────────────────────────────────

var toggleAgent bool

var toggleCmd = &cobra.Command{
	Use:   "toggle <path> <on|off>",
	Short: "Enable or disable an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch strings.ToLower(args[1]) {
		case "on", "true", "enable":
			enabled = true
		case "off", "false", "disable":
			enabled = false
		default:
			return fmt.Errorf("unknown state %q (want on or off)", args[1])
		}

		ctx := context.Background()
		c := newClient()
		if toggleAgent {
			a, err := c.ToggleAgent(ctx, args[0], enabled)
			if err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", a.Path, enabledMark(a.IsEnabled))
			return nil
		}
		s, err := c.ToggleServer(ctx, args[0], enabled)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", s.Path, enabledMark(s.IsEnabled))
		return nil
	},
}

func init() {
	toggleCmd.Flags().BoolVar(&toggleAgent, "agent", false, "toggle an agent instead of a server")
}

// ── rate ─────────────────────────────────────────────────────────────────────

var rateAgent bool

var rateCmd = &cobra.Command{
	Use:   "rate <path> <1-5>",
	Short: "Record a star rating for an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("rating must be a number 1-5")
		}

		ctx := context.Background()
		c := newClient()
		if rateAgent {
			a, err := c.RateAgent(ctx, args[0], rating)
			if err != nil {
				return err
			}
			fmt.Printf("%s now averages %.1f stars\n", a.Path, a.NumStars)
			return nil
		}
		s, err := c.RateServer(ctx, args[0], rating)
		if err != nil {
			return err
		}
		fmt.Printf("%s now averages %.1f stars\n", s.Path, s.NumStars)
		return nil
	},
}

func init() {
	rateCmd.Flags().BoolVar(&rateAgent, "agent", false, "rate an agent instead of a server")
}

// ── search ───────────────────────────────────────────────────────────────────

var (
	searchTypes []string
	searchMax   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Hybrid semantic search over servers, agents, and tools",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := newClient()

		resp, err := c.Search(ctx, client.SearchRequest{
			Query:       strings.Join(args, " "),
			EntityTypes: searchTypes,
			MaxResults:  searchMax,
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(resp)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tPATH\tNAME\tSCORE")
		for _, h := range resp.Servers {
			fmt.Fprintf(w, "server\t%s\t%s\t%.3f\n", h.Path, h.Name, h.RelevanceScore)
		}
		for _, h := range resp.Agents {
			fmt.Fprintf(w, "agent\t%s\t%s\t%.3f\n", h.Path, h.Name, h.RelevanceScore)
		}
		for _, h := range resp.Tools {
			fmt.Fprintf(w, "tool\t%s\t%s\t%.3f\n", h.ServerPath, h.ToolName, h.RelevanceScore)
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "entity types to search (mcp_server, a2a_agent, mcp_tool)")
	searchCmd.Flags().IntVar(&searchMax, "max", 0, "maximum results per entity type")
}

// ── federation ───────────────────────────────────────────────────────────────

var federationCmd = &cobra.Command{
	Use:   "federation",
	Short: "Manage upstream registry syncs",
}

var federationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured upstream registries",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := newClient().ListFederationSources(context.Background())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(sources)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tENABLED\tLAST SYNC")
		for _, s := range sources {
			last := "never"
			if s.LastSyncedAt != nil {
				last = s.LastSyncedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", s.ID, s.Name, s.Endpoint, s.Enabled, last)
		}
		return w.Flush()
	},
}

var syncSource string

var federationSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync from upstream registries (all enabled, or --source)",
	RunE: func(cmd *cobra.Command, args []string) error {
		outcomes, err := newClient().SyncFederation(context.Background(), syncSource)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(outcomes)
		}
		for _, o := range outcomes {
			fmt.Printf("%s: %d created, %d updated, %d failed\n", o.Source, o.Created, o.Updated, o.Failed)
			for _, e := range o.Errors {
				fmt.Printf("  error: %s\n", e)
			}
		}
		return nil
	},
}

func init() {
	federationSyncCmd.Flags().StringVar(&syncSource, "source", "", "sync only this upstream (ID or name)")
	federationCmd.AddCommand(federationListCmd)
	federationCmd.AddCommand(federationSyncCmd)
}

// ── scan ─────────────────────────────────────────────────────────────────────

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Show the stored security scan results for an entity (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := newClient().GetScan(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOut || report.Latest == nil {
			return printJSON(report)
		}
		l := report.Latest
		verdict := "UNSAFE"
		if l.IsSafe {
			verdict = "safe"
		}
		if l.ScanFailed {
			verdict = "scan failed: " + l.Error
		}
		fmt.Printf("%s: %s (critical=%d high=%d medium=%d low=%d) at %s\n",
			report.Path, verdict, l.Critical, l.High, l.Medium, l.Low,
			l.ScannedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("%d scans on record\n", len(report.History))
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the beaconctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("beaconctl", version)
	},
}
