package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/KI7MT/swx-archive/internal/common"
	"github.com/KI7MT/swx-archive/internal/solar"
)

// asker shows label, offers suggestions and returns the answer, or def
// when the answer is empty.
type asker func(label, def string, suggest []prompt.Suggest) string

var yesNo = []prompt.Suggest{
	{Text: "y", Description: "yes"},
	{Text: "n", Description: "no"},
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptAsk reads one line with go-prompt. For comma-separated answers the
// completion applies to the last element.
func promptAsk(label, def string, suggest []prompt.Suggest) string {
	completer := func(d prompt.Document) []prompt.Suggest {
		word := d.GetWordBeforeCursor()
		if i := strings.LastIndex(word, ","); i >= 0 {
			word = word[i+1:]
		}
		if word == "" {
			return nil
		}
		return prompt.FilterHasPrefix(suggest, word, true)
	}

	text := label
	if def != "" {
		text += " [" + def + "]"
	}
	answer := strings.TrimSpace(prompt.Input(text+": ", completer))
	if answer == "" {
		return def
	}
	return answer
}

func sourceSuggestions() []prompt.Suggest {
	out := []prompt.Suggest{{Text: "all", Description: "every source"}}
	for _, s := range solar.Registry() {
		out = append(out, prompt.Suggest{Text: s.ID, Description: s.Desc})
	}
	return out
}

func stationSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(common.DefaultStations))
	for _, s := range common.DefaultStations {
		out = append(out, prompt.Suggest{Text: s})
	}
	return out
}

// askConfig fills the run settings from prompts. Invalid dates keep the
// current value.
func askConfig(cfg *common.Config, ask asker, out io.Writer) {
	fmt.Fprintln(out, "=== Data extraction setup ===")

	if d, err := common.ParseDate(ask("Start date (DDMMYYYY)", cfg.Start.Format("02012006"), nil)); err != nil {
		fmt.Fprintf(out, "Invalid start date, keeping %s\n", cfg.Start)
	} else {
		cfg.Start = d
	}
	if d, err := common.ParseDate(ask("End date (DDMMYYYY)", cfg.End.Format("02012006"), nil)); err != nil {
		fmt.Fprintf(out, "Invalid end date, keeping %s\n", cfg.End)
	} else {
		cfg.End = d
	}

	def := "all"
	if len(cfg.Sources) > 0 {
		def = strings.Join(cfg.Sources, ",")
	}
	answer := ask("Sources (comma separated)", def, sourceSuggestions())
	if strings.EqualFold(answer, "all") {
		cfg.Sources = nil
	} else {
		cfg.Sources = splitList([]string{answer})
	}

	if cfg.Selected(solar.StationSourceID) {
		answer = ask("Station codes (comma separated)", strings.Join(cfg.Stations, ","), stationSuggestions())
		if stations := common.NormalizeStations([]string{answer}); len(stations) > 0 {
			cfg.Stations = stations
		}
	}

	cfg.Purge = isYes(ask("Delete previous data and plots? (y/n)", "n", yesNo))
}

// confirmPurge asks before a directory is removed. Without a terminal the
// answer is no.
func confirmPurge(dir string) bool {
	if !isTerminal() {
		return false
	}
	return isYes(promptAsk(fmt.Sprintf("Really delete %s? (y/n)", dir), "n", yesNo))
}

func isYes(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "y")
}
