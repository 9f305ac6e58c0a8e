package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	serverAddr string
	timeout    time.Duration
	outputJSON bool
	prettyJSON bool
	jwtToken   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pulsectl",
	Short: "CLI for the PulseHook admin API",
	Long: `pulsectl is a command line client for the PulseHook webhook platform.

Inspect and replay events, manage connected accounts, and browse the
dead letter queue over the PulseHook HTTP admin API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pulsectl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8080", "PulseHook API base URL")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "output raw JSON")
	rootCmd.PersistentFlags().BoolVarP(&prettyJSON, "pretty", "p", false, "pretty-print JSON output using jq (requires jq in PATH)")
	rootCmd.PersistentFlags().StringVar(&jwtToken, "token", "", "JWT bearer token for authenticated endpoints")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pulsectl")
	}

	viper.SetEnvPrefix("PULSECTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		// Config file values only apply when the flag was not set explicitly.
		if !rootCmd.PersistentFlags().Changed("server") {
			serverAddr = viper.GetString("server")
		}
		if !rootCmd.PersistentFlags().Changed("timeout") {
			if d := viper.GetDuration("timeout"); d > 0 {
				timeout = d
			}
		}
		if !rootCmd.PersistentFlags().Changed("json") {
			outputJSON = viper.GetBool("json")
		}
		if !rootCmd.PersistentFlags().Changed("pretty") {
			prettyJSON = viper.GetBool("pretty")
		}
		if !rootCmd.PersistentFlags().Changed("token") {
			jwtToken = viper.GetString("token")
		}
	}

	if jwtToken == "" {
		jwtToken = os.Getenv("PULSECTL_TOKEN")
	}
}

// makeHTTPRequest performs a request against the admin API, attaching the
// bearer token when configured.
func makeHTTPRequest(method, path string, body io.Reader) (*http.Response, error) {
	url := strings.TrimRight(serverAddr, "/") + path

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if jwtToken != "" {
		req.Header.Set("Authorization", "Bearer "+jwtToken)
	}

	client := &http.Client{Timeout: timeout}
	return client.Do(req)
}

// getJSON issues a GET and decodes the JSON response body into out.
// Non-2xx responses are returned as errors carrying the server's message.
func getJSON(path string, out interface{}) error {
	resp, err := makeHTTPRequest("GET", path, nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// postJSON issues a POST with an optional JSON body and decodes the response.
func postJSON(path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	resp, err := makeHTTPRequest("POST", path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func httpError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, e.Error)
	}
	return fmt.Errorf("HTTP error: %s", resp.Status)
}

// checkJQAvailable checks if jq is available in the system PATH
func checkJQAvailable() bool {
	_, err := exec.LookPath("jq")
	return err == nil
}

// formatWithJQ formats JSON data using jq for pretty printing
func formatWithJQ(jsonData []byte) (string, error) {
	cmd := exec.Command("jq", ".")
	cmd.Stdin = bytes.NewReader(jsonData)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("jq formatting failed: %w", err)
	}
	return out.String(), nil
}

// printOutput prints v as JSON, pretty-printed via jq when enabled.
func printOutput(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}

	if prettyJSON && checkJQAvailable() {
		if formatted, err := formatWithJQ(data); err == nil {
			fmt.Print(formatted)
			return
		}
	}
	fmt.Println(string(data))
}

// parseLimit parses an optional --limit value; empty means server default.
func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit: %s", s)
	}
	return n, nil
}
