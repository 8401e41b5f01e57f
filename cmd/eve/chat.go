package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/andrew/eve-companion/pkg/companion"
	"github.com/andrew/eve-companion/pkg/llm"
	"github.com/andrew/eve-companion/pkg/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat",
	Long: `Opens the ongoing conversation in the terminal.

Commands:
  /consolidate  fold the conversation into long-term memory
  /memory       show long-term memory
  /clear        forget the conversation and the memory
  /tokens       show the estimated context size
  /exit         quit`,
	RunE: runChat,
}

var (
	boldGreen   = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan    = color.New(color.FgCyan, color.Bold).SprintFunc()
	boldMagenta = color.New(color.FgMagenta, color.Bold).SprintFunc()
	red         = color.New(color.FgRed).SprintFunc()
	yellow      = color.New(color.FgYellow).SprintFunc()
	faint       = color.New(color.Faint).SprintFunc()
)

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, quietLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	snap := a.svc.Snapshot()

	fmt.Fprintln(out, boldMagenta("EVE"))
	fmt.Fprintf(out, "Using model: %s\n", boldCyan(snap.Settings.LocalModelName))
	fmt.Fprintf(out, "Endpoint: %s\n", llm.NormalizeEndpoint(snap.Settings.LocalLLMURL))
	if snap.ImageEndpoint == "" {
		fmt.Fprintln(out, faint("Pictures are off. Set an image endpoint with: eve settings image-endpoint <url>"))
	}
	fmt.Fprintln(out, "Type your message and press Enter. Type /exit or press Ctrl+C to quit.")
	fmt.Fprintln(out)

	for _, msg := range snap.Messages {
		printMessage(out, msg)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, boldGreen("You: "))

		var input string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nShutting down...")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input = line
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "/") {
			confirm := func() string {
				select {
				case answer := <-lines:
					return answer
				case <-ctx.Done():
					return ""
				}
			}
			if quit := runSlashCommand(cmd, a, out, trimmed, confirm); quit {
				return nil
			}
			continue
		}

		reply, err := a.svc.Send(ctx, input)
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", red("Error:"), err)
			continue
		}
		printMessage(out, reply)
		notices := a.svc.DrainNotices()
		printNotices(out, notices)
		if reply.IsError && !mentionsPull(notices) {
			fmt.Fprintln(out, faint("Make sure Ollama is running with: ollama serve"))
		}
		fmt.Fprintln(out)
	}
}

// runSlashCommand handles a /command and reports whether the REPL should exit
func runSlashCommand(cmd *cobra.Command, a *app, out io.Writer, line string, confirm func() string) bool {
	ctx := cmd.Context()
	name := strings.ToLower(strings.Fields(line)[0])

	switch name {
	case "/exit", "/quit":
		return true
	case "/memory":
		mem := a.svc.Snapshot().LongTermMemory
		if strings.TrimSpace(mem) == "" {
			fmt.Fprintln(out, faint("No memories consolidated yet."))
		} else {
			fmt.Fprintln(out, mem)
		}
	case "/consolidate":
		fmt.Fprintln(out, faint("Consolidating memories..."))
		err := a.svc.Consolidate(ctx)
		printNotices(out, a.svc.DrainNotices())
		printHint(out, err)
	case "/clear":
		fmt.Fprint(out, yellow("This forgets the whole conversation and the memory. Type 'yes' to confirm: "))
		if strings.TrimSpace(strings.ToLower(confirm())) != "yes" {
			fmt.Fprintln(out, faint("Cancelled."))
			return false
		}
		err := a.svc.ClearHistory(ctx)
		printNotices(out, a.svc.DrainNotices())
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", red("Error:"), err)
			printHint(out, err)
			return false
		}
		for _, msg := range a.svc.Snapshot().Messages {
			printMessage(out, msg)
		}
	case "/tokens":
		snap := a.svc.Snapshot()
		fmt.Fprintf(out, "Context (est.): %s tokens\n", colorForLevel(snap.TokenLevel)(fmt.Sprintf("%d", snap.Tokens)))
	default:
		fmt.Fprintf(out, "%s unknown command %s\n", red("Error:"), name)
	}
	return false
}

func printMessage(out io.Writer, msg models.Message) {
	switch {
	case msg.Role == models.RoleUser:
		fmt.Fprintf(out, "%s %s\n", boldGreen("You:"), msg.Text)
	case msg.IsError:
		fmt.Fprintf(out, "%s %s\n", boldCyan("Eve:"), red(msg.Text))
	default:
		fmt.Fprintf(out, "%s %s\n", boldCyan("Eve:"), msg.Text)
	}
	if msg.Image != "" {
		fmt.Fprintf(out, "     %s %s\n", boldMagenta("[photo]"), imageLabel(msg.Image))
	}
}

// imageLabel keeps inline data URIs from flooding the terminal
func imageLabel(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		if i := strings.IndexByte(ref, ','); i > 0 {
			return fmt.Sprintf("%s,... (%d bytes)", ref[:i], len(ref)-i-1)
		}
	}
	return ref
}

func printNotices(out io.Writer, notices []companion.Notice) {
	for _, n := range notices {
		switch n.Level {
		case companion.NoticeError:
			fmt.Fprintln(out, red("! "+n.Message))
		case companion.NoticeSuccess:
			fmt.Fprintln(out, boldGreen("✓ "+n.Message))
		default:
			fmt.Fprintln(out, n.Message)
		}
	}
}

// printHint suggests a fix for failures caused by the local model server
func printHint(out io.Writer, err error) {
	switch {
	case err == nil:
	case llm.IsModelNotFound(err):
		var notFound *models.ModelNotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintln(out, faint("Pull it with: ollama pull "+notFound.Model))
		}
	case errors.Is(err, models.ErrNetwork):
		fmt.Fprintln(out, faint("Make sure Ollama is running with: ollama serve"))
	}
}

func mentionsPull(notices []companion.Notice) bool {
	for _, n := range notices {
		if strings.Contains(n.Message, "ollama pull") {
			return true
		}
	}
	return false
}

func colorForLevel(level companion.TokenLevel) func(a ...interface{}) string {
	switch level {
	case companion.TokensCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case companion.TokensWarning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return fmt.Sprint
	}
}
