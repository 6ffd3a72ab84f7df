// Package secgate is the whitelist/blacklist/confirmation policy engine
// guarding local command execution. A command matching any blacklist rule
// is rejected even when it also matches the whitelist.
package secgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ExecTimeout is the wall-clock limit for one command.
const ExecTimeout = 30 * time.Second

const maxCommandLength = 1000

// Verdict is the deterministic validation result.
type Verdict struct {
	Allowed              bool   `json:"allowed"`
	Reason               string `json:"reason"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	SuggestedAlternative string `json:"suggested_alternative,omitempty"`
}

// ExecResult is the outcome of running a permitted command.
type ExecResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Status is the gate's externally visible state.
type Status struct {
	Enabled           bool `json:"enabled"`
	Plan              Plan `json:"plan"`
	WhitelistCount    int  `json:"whitelist_count"`
	BlacklistCount    int  `json:"blacklist_count"`
	ConfirmationCount int  `json:"confirmation_required_count"`
}

// Gate validates and executes shell commands under a plan's policy.
// Administrative mutations are out-of-band with respect to calls; the
// mutex only guards the rare set changes.
type Gate struct {
	mu      sync.RWMutex
	plan    Plan
	policy  Policy
	enabled bool
}

// New builds a gate for the given plan with the gate enabled.
func New(plan Plan) *Gate {
	return &Gate{plan: plan, policy: PolicyFor(plan), enabled: true}
}

// Validate applies the policy to one command. The order is fixed:
// blacklist, whitelist, confirmation, then structural checks.
func (g *Gate) Validate(command string) Verdict {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.enabled {
		return Verdict{Allowed: true, Reason: "Seguridad deshabilitada"}
	}

	command = strings.TrimSpace(command)
	if command == "" {
		return Verdict{Allowed: false, Reason: "Comando vacío"}
	}

	tokens, err := tokenize(command)
	if err != nil || len(tokens) == 0 {
		return Verdict{Allowed: false, Reason: "Comando mal formateado"}
	}
	base := tokens[0]

	if g.policy.Blacklist[base] {
		return Verdict{
			Allowed:              false,
			Reason:               fmt.Sprintf("comando '%s' está en la lista negra", base),
			SuggestedAlternative: safeAlternatives[base],
		}
	}
	for _, p := range blacklistPatterns {
		if p.re.MatchString(command) {
			return Verdict{
				Allowed:              false,
				Reason:               fmt.Sprintf("matches blacklist pattern '%s'", p.label),
				SuggestedAlternative: safeAlternatives[base],
			}
		}
	}

	if !g.policy.Whitelist[base] {
		return Verdict{
			Allowed:              false,
			Reason:               fmt.Sprintf("comando '%s' no está en la lista blanca", base),
			SuggestedAlternative: safeAlternatives[base],
		}
	}

	if v := structuralChecks(command); !v.Allowed {
		return v
	}

	if g.requiresConfirmation(base, command) {
		return Verdict{Allowed: true, Reason: "Comando permitido", RequiresConfirmation: true}
	}
	return Verdict{Allowed: true, Reason: "Comando permitido"}
}

func (g *Gate) requiresConfirmation(base, command string) bool {
	if g.policy.Confirmation[base] {
		return true
	}
	for rule := range g.policy.Confirmation {
		if strings.Contains(rule, " ") && strings.Contains(command, rule) {
			return true
		}
	}
	for _, re := range confirmationPatterns {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

func structuralChecks(command string) Verdict {
	if len(command) > maxCommandLength {
		return Verdict{Allowed: false, Reason: "Comando demasiado largo"}
	}

	var suspicious []string
	for _, ch := range []string{"&", ";", "|", ">", "<", "`", "$"} {
		if strings.Contains(command, ch) {
			suspicious = append(suspicious, ch)
		}
	}
	if len(suspicious) > 0 {
		safe := false
		for _, re := range safeCompositions {
			if re.MatchString(command) {
				safe = true
				break
			}
		}
		if !safe {
			return Verdict{
				Allowed: false,
				Reason:  "Caracteres potencialmente peligrosos: " + strings.Join(suspicious, ", "),
			}
		}
	}

	for _, path := range dangerousPaths {
		if !strings.Contains(command, path) {
			continue
		}
		for _, verb := range destructiveVerbs {
			if strings.Contains(command, verb) {
				return Verdict{
					Allowed: false,
					Reason:  "Operación peligrosa en directorio del sistema: " + path,
				}
			}
		}
	}

	return Verdict{Allowed: true, Reason: "Comando permitido"}
}

// Execute runs a permitted command through the system shell with a
// scrubbed environment and the wall-clock timeout. It re-validates;
// callers handle the confirmation flow before calling.
func (g *Gate) Execute(ctx context.Context, command, workingDir string) ExecResult {
	verdict := g.Validate(command)
	if !verdict.Allowed {
		return ExecResult{Success: false, Stderr: "Comando no permitido: " + verdict.Reason}
	}

	ctx, cancel := context.WithTimeout(ctx, ExecTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = workingDir
	cmd.Env = scrubEnv(os.Environ())

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ExecResult{Success: false, Stdout: stdout.String(), Stderr: "command exceeded time limit"}
	}
	if err != nil {
		return ExecResult{Success: false, Stdout: stdout.String(), Stderr: stderr.String()}
	}
	return ExecResult{Success: true, Stdout: stdout.String(), Stderr: stderr.String()}
}

// scrubEnv drops loader-injection variables and keeps everything else,
// PATH included.
func scrubEnv(env []string) []string {
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "LD_PRELOAD=") || strings.HasPrefix(kv, "LD_LIBRARY_PATH=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Status reports the gate's current state.
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Status{
		Enabled:           g.enabled,
		Plan:              g.plan,
		WhitelistCount:    len(g.policy.Whitelist),
		BlacklistCount:    len(g.policy.Blacklist),
		ConfirmationCount: len(g.policy.Confirmation),
	}
}

// Enable turns validation on.
func (g *Gate) Enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = true
}

// Disable turns validation off. Not recommended.
func (g *Gate) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = false
}

// AddToWhitelist permits an extra base command unless it is blacklisted.
func (g *Gate) AddToWhitelist(command string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.policy.Blacklist[command] {
		return false
	}
	g.policy.Whitelist[command] = true
	return true
}

// tokenize splits a command with shell-quoting rules: single quotes,
// double quotes and backslash escapes. Unterminated quotes are an error.
func tokenize(command string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	var inToken bool
	var quote rune

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur.WriteRune(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			inToken = true
		case ch == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			inToken = true
		case ch == ' ' || ch == '\t':
			flush()
		default:
			cur.WriteRune(ch)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	flush()
	return tokens, nil
}
