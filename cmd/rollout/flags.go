package main

// TrainFlags decouples cobra from the run logic for testing.
type TrainFlags struct {
	ConfigPath    string
	Name          string
	NbEnvs        int
	Show          bool
	Seed          int64
	MetricsListen string
	Verbose       bool
}
