package coordination

import "strings"

// Server presence values
const (
	StatusReady   = "READY"
	StatusRunning = "RUNNING"
	StatusOffline = "OFFLINE"
)

// jobPaths builds the store keys of one job:
//
//	/{job}/config/cron
//	/{job}/config/misfire
//	/{job}/servers/{instance}/status    ephemeral presence
//	/{job}/servers/{instance}/stopped   manual stop flag
//	/{job}/execution/running            instance running a fire
//	/{job}/execution/misfire            last missed fire time
//	/{job}/execution/last_complete      last completed fire time
type jobPaths struct {
	job string
}

func (p jobPaths) root() string           { return "/" + p.job }
func (p jobPaths) cron() string           { return p.root() + "/config/cron" }
func (p jobPaths) misfire() string        { return p.root() + "/config/misfire" }
func (p jobPaths) servers() string        { return p.root() + "/servers/" }
func (p jobPaths) running() string        { return p.root() + "/execution/running" }
func (p jobPaths) misfireMarker() string  { return p.root() + "/execution/misfire" }
func (p jobPaths) lastComplete() string   { return p.root() + "/execution/last_complete" }
func (p jobPaths) status(i string) string { return p.servers() + i + "/status" }

func (p jobPaths) stopped(instance string) string {
	return p.servers() + instance + "/stopped"
}

// serverOf returns the instance segment of a key under servers(), or "".
func (p jobPaths) serverOf(key string) string {
	rest, ok := strings.CutPrefix(key, p.servers())
	if !ok {
		return ""
	}
	instance, _, _ := strings.Cut(rest, "/")
	return instance
}
