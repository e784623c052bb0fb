/*
Package log provides structured logging for Glassdome using zerolog.

# Configuration

Init(Config) sets the global level, JSON-vs-console format, and output
writer once at process start; every other package calls WithComponent
(or the narrower WithLabID/WithTaskID/WithMissionID) to get a child
logger carrying that context on every line.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	poolLog := log.WithComponent("sparepool")
	poolLog.Info().Str("os_family", "ubuntu").Msg("topping up pool")

	labLog := log.WithLabID(labID)
	labLog.Error().Err(err).Msg("deploy failed")

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
