package runner

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/icmpprobe"
	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/pingsweep"
	errorutil "github.com/projectdiscovery/utils/errors"
	fileutil "github.com/projectdiscovery/utils/file"
	sliceutil "github.com/projectdiscovery/utils/slice"
	"github.com/tidwall/gjson"
)

// collectTargets gathers targets from flags, the list file, stdin and the
// local networks, dropping duplicates and anything that is not an ip or cidr
func (r *Runner) collectTargets() ([]string, error) {
	var targets []string
	for _, target := range r.options.Targets {
		targets = append(targets, parseLine(target, r.options.JSONField)...)
	}

	if r.options.TargetsFile != "" {
		lines, err := fileutil.ReadFile(r.options.TargetsFile)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not read targets from %s", r.options.TargetsFile)
		}
		for line := range lines {
			targets = append(targets, parseLine(line, r.options.JSONField)...)
		}
	}

	if r.stdin != nil {
		fromStdin, err := readLines(r.stdin, r.options.JSONField)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not read targets from stdin")
		}
		targets = append(targets, fromStdin...)
	}

	if r.options.AutoDiscover {
		local, err := pingsweep.LocalTargets()
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not discover local networks")
		}
		gologger.Info().Msgf("Auto discovered %d local networks", len(local))
		targets = append(targets, local...)
	}

	valid := targets[:0]
	for _, target := range targets {
		if !isValidTarget(target) {
			gologger.Warning().Msgf("Skipping invalid target %q (must be CIDR or IP)", target)
			continue
		}
		valid = append(valid, target)
	}
	return sliceutil.Dedupe(valid), nil
}

func readLines(reader io.Reader, jsonField string) ([]string, error) {
	var targets []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		targets = append(targets, parseLine(scanner.Text(), jsonField)...)
	}
	return targets, scanner.Err()
}

// parseLine extracts targets from one input line. JSON lines are read
// through jsonField, which may point at a string or an array of strings.
func parseLine(line, jsonField string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	if !strings.HasPrefix(line, "{") {
		return []string{line}
	}
	if !gjson.Valid(line) {
		gologger.Warning().Msgf("Skipping malformed json input: %s", line)
		return nil
	}

	value := gjson.Get(line, jsonField)
	if !value.Exists() {
		gologger.Debug().Msgf("Field %s not found in %s", jsonField, line)
		return nil
	}
	if value.IsArray() {
		var targets []string
		for _, item := range value.Array() {
			if target := strings.TrimSpace(item.String()); target != "" {
				targets = append(targets, target)
			}
		}
		return targets
	}
	if target := strings.TrimSpace(value.String()); target != "" {
		return []string{target}
	}
	return nil
}

func isValidTarget(target string) bool {
	if _, _, err := net.ParseCIDR(target); err == nil {
		return true
	}
	_, err := icmpprobe.NumericResolver{}.Resolve(target)
	return err == nil
}

func stdinReader() io.Reader {
	if fileutil.HasStdin() {
		return os.Stdin
	}
	return nil
}
