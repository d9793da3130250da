// Command parsecheck runs one chat message through the relay pipeline
// without touching Discord, Altrady or the state file, and prints what
// would be sent.
//
//	parsecheck [-message] [-dump-config] [file]
//
// Input is read from file, or stdin when no file is given. With -message the
// input is a Discord message JSON object (content and embeds) instead of
// plain text.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"signal_relay/internal/models"
	"signal_relay/internal/modules/config"
	relay "signal_relay/internal/modules/relay/service"
	"signal_relay/internal/order"
	"signal_relay/internal/signal"
	"signal_relay/pkg/logger"
)

type report struct {
	Text   string                   `json:"text"`
	Signal *models.TradeSignal      `json:"signal,omitempty"`
	Drops  []string                 `json:"dropped,omitempty"`
	Hash   string                   `json:"hash,omitempty"`
	Order  *models.OrderInstruction `json:"order,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func main() {
	asMessage := flag.Bool("message", false, "input is a Discord message JSON object")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration (secrets masked) and exit")
	flag.Parse()

	if _, err := logger.New("warn"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config: %v", err)
	}

	if *dumpConfig {
		out, err := cfg.Redacted()
		if err != nil {
			logger.Fatal("config: %v", err)
		}
		fmt.Print(out)
		return
	}

	raw, err := readInput(flag.Arg(0))
	if err != nil {
		logger.Fatal("input: %v", err)
	}

	rep, err := check(cfg, raw, *asMessage)
	if err != nil {
		logger.Fatal("%v", err)
	}

	out, err := sonic.ConfigStd.MarshalIndent(rep, "", "  ")
	if err != nil {
		logger.Fatal("encode: %v", err)
	}
	fmt.Println(string(out))
	if rep.Error != "" {
		os.Exit(2)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func check(cfg *config.Config, raw []byte, asMessage bool) (*report, error) {
	msg := models.Message{Content: string(raw)}
	if asMessage {
		msg = models.Message{}
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, errors.Wrap(err, "decode message")
		}
	}

	rep := &report{Text: signal.NormalizeMessage(msg)}

	sig, err := signal.NewExtractor(cfg.ExtractOptions()).Extract(rep.Text)
	if err != nil {
		rep.Error = err.Error()
		return rep, nil
	}
	rep.Signal = sig

	drops, err := signal.Validate(sig, cfg.ValidationOptions())
	for _, d := range drops {
		rep.Drops = append(rep.Drops, d.String())
	}
	if err != nil {
		rep.Error = err.Error()
		return rep, nil
	}
	rep.Hash = relay.SignalHash(sig)

	compiler, err := order.NewCompiler(cfg.CompilerSettings())
	if err != nil {
		return nil, errors.Wrap(err, "compiler")
	}
	o, err := compiler.Compile(sig)
	if err != nil {
		rep.Error = err.Error()
		return rep, nil
	}
	// ключи в выводе не нужны
	o.APIKey, o.APISecret = "", ""
	rep.Order = o
	return rep, nil
}
