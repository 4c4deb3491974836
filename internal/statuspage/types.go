package statuspage

// Data is the template model for the status page endpoint. Keep it
// plain text and stable: operators script against this for quick health
// checks without a Prometheus scrape.
type Data struct {
	Name       string
	Region     string
	Version    string
	ServerTime string

	ServersRegistered int
	PeersTracked      int
	PeersBanned       int

	Message string
}
