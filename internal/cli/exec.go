package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harun/browsy/pkg/browsy"
	"github.com/spf13/cobra"
)

var (
	execAgent      string
	execJSON       bool
	execIdempotent bool
)

var execCmd = &cobra.Command{
	Use:   "exec <operation> [key=value...]",
	Short: "Run one browsy operation for an agent",
	Long: `Run one browsy operation through the bridge, in the named agent's session.

Parameters are key=value pairs. Values that parse as JSON (numbers, booleans,
quoted strings) are sent as such; anything else is sent as a string.

Operations: ` + strings.Join(operationNames(), ", ") + `

Examples:
  browsy-bridge exec browse url=https://example.com
  browsy-bridge exec click id=12 --agent research
  browsy-bridge exec tables --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execAgent, "agent", "", "agent whose session is used (default "+browsy.DefaultAgentID+")")
	execCmd.Flags().BoolVar(&execJSON, "json", false, "pretty-print the response when it is JSON")
	execCmd.Flags().BoolVar(&execIdempotent, "idempotent", false, "send an idempotency key so a retried call is not repeated")
	rootCmd.AddCommand(execCmd)
}

func operationNames() []string {
	names := browsy.OperationNames()
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = string(name)
	}
	return out
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	var key string
	if execIdempotent {
		key = uuid.NewString()
	}

	var result struct {
		AgentID string `json:"agentId"`
		Text    string `json:"text"`
	}
	err = newGatewayClient(cfg).call(cmd.Context(), "browsy.execute", map[string]interface{}{
		"operation": args[0],
		"params":    params,
		"agentId":   execAgent,
	}, key, &result)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderText(result.Text, execJSON))
	return nil
}

// parseParams turns key=value arguments into operation parameters
func parseParams(args []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}

		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}

// renderText indents text when asked and it holds JSON, otherwise returns it as is
func renderText(text string, pretty bool) string {
	if !pretty || !json.Valid([]byte(text)) {
		return text
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return text
	}
	return buf.String()
}
