package cli

import "flag"

const versionString = "1.0.0"

type cliOptions struct {
	configPath        string
	dbPath            string
	input             string
	follow            bool
	replayDeadLetters bool
	verbose           bool
	version           bool
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("mixmirror", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default ./mixmirror.toml when present)")
	fs.StringVar(&opts.dbPath, "db", "", "Override db.path (file path or :memory:)")
	fs.StringVar(&opts.input, "input", "-", "JSON-lines mutation stream to replay ('-' for stdin)")
	fs.BoolVar(&opts.follow, "follow", false, "Keep reading --input as it grows until interrupted")
	fs.BoolVar(&opts.replayDeadLetters, "replay-dead-letters", false, "Re-apply dead-lettered mutations and exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if opts.follow && (opts.input == "" || opts.input == "-") {
		return cliOptions{}, errFollowNeedsFile
	}
	return opts, nil
}
