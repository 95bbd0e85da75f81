package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tdomain "github.com/corvusHold/certify/internal/tokens/domain"
)

var (
	cfgFile   string
	apiURL    string
	apiToken  string
	apiKey    string
	verbose   bool
	outputFmt string
)

// Config holds CLI configuration
type Config struct {
	APIURL   string `mapstructure:"api_url"`
	APIToken string `mapstructure:"api_token"`
	APIKey   string `mapstructure:"api_key"`
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certify-cli",
	Short: "Certify CLI - certificate batches, validation and previews",
	Long: `Certify CLI provides command-line access to the Certify API.
Start batches, generate single certificates, verify identifiers and preview
templates locally from the terminal.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			fmt.Printf("API URL: %s\n", apiURL)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.certify-cli.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Certify API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "session token for account endpoints")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the generate endpoint")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "output format (table, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("api_token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(validateCSVCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".certify-cli")
	}

	// Environment variables
	viper.SetEnvPrefix("CERTIFY")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Printf("Using config file: %s\n", viper.ConfigFileUsed())
	}

	if apiURL == "" {
		apiURL = viper.GetString("api_url")
	}
	if apiToken == "" {
		apiToken = viper.GetString("api_token")
	}
	if apiKey == "" {
		apiKey = viper.GetString("api_key")
	}

	// Default values
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
}

func newClient() *CertifyClient {
	return &CertifyClient{BaseURL: strings.TrimRight(apiURL, "/"), Token: apiToken, APIKey: apiKey}
}

// Batch commands
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch generation commands",
	Long:  "Start certificate batches from a CSV file and inspect their progress",
}

var batchStartCmd = &cobra.Command{
	Use:   "start [file.csv]",
	Short: "Start a batch from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, _ := cmd.Flags().GetString("template")
		name, _ := cmd.Flags().GetString("name")
		cc, _ := cmd.Flags().GetString("cc")
		bcc, _ := cmd.Flags().GetString("bcc")
		if templateID == "" || name == "" {
			return fmt.Errorf("--template and --name are required")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()

		res, err := newClient().StartBatch(BatchRequest{
			TemplateID: templateID,
			Name:       name,
			CC:         cc,
			BCC:        bcc,
			FileName:   f.Name(),
			File:       f,
		})
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(res)
		}
		printBatch(res.Batch)
		if len(res.MissingColumns) > 0 {
			fmt.Printf("%-20s: %s (rendered empty)\n", "missing columns", strings.Join(res.MissingColumns, ", "))
		}
		return nil
	},
}

var batchGetCmd = &cobra.Command{
	Use:   "get [batch-id]",
	Short: "Show batch progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newClient().GetBatch(args[0])
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(b)
		}
		printBatch(b)
		return nil
	},
}

var batchFailuresCmd = &cobra.Command{
	Use:   "failures [batch-id]",
	Short: "List failed rows and rejected emails of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newClient().BatchFailures(args[0])
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(f)
		}
		fmt.Printf("%-6s %-12s %s\n", "ROW", "KIND", "REASON")
		fmt.Println(strings.Repeat("-", 60))
		for _, ie := range f.InvalidEmails {
			fmt.Printf("%-6d %-12s %s (%s)\n", ie.Row, "email", ie.Reason, ie.Email)
		}
		for _, fc := range f.Failed {
			fmt.Printf("%-6d %-12s %s\n", fc.Row, "render", fc.Reason)
		}
		return nil
	},
}

func init() {
	batchCmd.AddCommand(batchStartCmd)
	batchCmd.AddCommand(batchGetCmd)
	batchCmd.AddCommand(batchFailuresCmd)

	batchStartCmd.Flags().String("template", "", "template ID")
	batchStartCmd.Flags().String("name", "", "batch name")
	batchStartCmd.Flags().String("cc", "", "comma-separated CC addresses")
	batchStartCmd.Flags().String("bcc", "", "comma-separated BCC addresses")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one certificate through the API key endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, _ := cmd.Flags().GetString("template")
		email, _ := cmd.Flags().GetString("email")
		pairs, _ := cmd.Flags().GetStringArray("set")
		if templateID == "" || email == "" {
			return fmt.Errorf("--template and --email are required")
		}
		values, err := parsePairs(pairs)
		if err != nil {
			return err
		}
		res, err := newClient().Generate(templateID, email, values)
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(res)
		}
		fmt.Printf("%-20s: %s\n", "certificate id", res.CertificateID)
		fmt.Printf("%-20s: %s\n", "certificate url", res.CertificateURL)
		return nil
	},
}

func init() {
	generateCmd.Flags().String("template", "", "template ID")
	generateCmd.Flags().String("email", "", "recipient email")
	generateCmd.Flags().StringArray("set", nil, "placeholder value as name=value (repeatable)")
}

var verifyCmd = &cobra.Command{
	Use:   "verify [unique-identifier]",
	Short: "Verify a certificate by its public identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newClient().Verify(args[0])
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(v)
		}
		fmt.Printf("%-20s: %s\n", "identifier", v.Certificate.UniqueIdentifier)
		fmt.Printf("%-20s: %s\n", "issued", v.Certificate.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("%-20s: %s\n", "issuer", v.Creator.Name)
		fmt.Printf("%-20s: %s\n", "image", v.ImageURL)
		return nil
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Show token balance and recent transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().Tokens()
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(t)
		}
		fmt.Printf("%-20s: %d\n", "balance", t.Balance)
		for _, h := range t.History {
			amount := h.Amount
			if h.Type == tdomain.TypeDeduct {
				amount = -amount
			}
			fmt.Printf("%-20s  %+6d  %s\n", h.CreatedAt.Format("2006-01-02 15:04:05"), amount, h.Reason)
		}
		return nil
	},
}

// API key commands
var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key management",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key (shown once)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetString("ttl")
		k, err := newClient().CreateAPIKey(ttl)
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(k)
		}
		fmt.Printf("%-20s: %s\n", "id", k.APIKey.ID)
		fmt.Printf("%-20s: %s\n", "key", k.Key)
		fmt.Println("Store this key now; it cannot be shown again.")
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke [key-id]",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().RevokeAPIKey(args[0]); err != nil {
			return err
		}
		fmt.Println("API key revoked.")
		return nil
	},
}

func init() {
	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("ttl", "", "lifetime as a Go duration, e.g. 720h")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check system health",
	Long:  "Check the health status of the Certify API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newClient().Health()
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(h)
		}
		for _, k := range []string{"status", "version", "db", "cache", "time"} {
			if v, ok := h[k]; ok {
				fmt.Printf("%-20s: %v\n", k, v)
			}
		}
		return nil
	},
}

// Configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Manage CLI configuration settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long:  "Initialize CLI configuration with interactive prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig()
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func initializeConfig() error {
	fmt.Println("Certify CLI Configuration Setup")
	fmt.Println("===============================")

	var config Config

	fmt.Print("Certify API URL [http://localhost:8080]: ")
	var url string
	_, _ = fmt.Scanln(&url)
	if url == "" {
		url = "http://localhost:8080"
	}
	config.APIURL = url

	fmt.Print("Session token: ")
	_, _ = fmt.Scanln(&config.APIToken)

	fmt.Print("API key (optional): ")
	_, _ = fmt.Scanln(&config.APIKey)

	viper.Set("api_url", config.APIURL)
	viper.Set("api_token", config.APIToken)
	viper.Set("api_key", config.APIKey)

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := fmt.Sprintf("%s/.certify-cli.yaml", home)
	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration saved to %s\n", configPath)
	return nil
}

func showConfig() error {
	fmt.Println("Current Configuration:")
	fmt.Printf("API URL: %s\n", viper.GetString("api_url"))
	fmt.Printf("Session Token: %s\n", maskToken(viper.GetString("api_token")))
	fmt.Printf("API Key: %s\n", maskToken(viper.GetString("api_key")))

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	}
	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// parsePairs turns name=value flags into a placeholder map.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func logVerbose(format string, args ...any) {
	if verbose {
		log.Printf("[VERBOSE] "+format, args...)
	}
}
