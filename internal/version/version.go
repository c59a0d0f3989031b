package version

// Overridden at build time:
// go build -ldflags "-X finder/internal/version.Version=0.3.0 -X finder/internal/version.Commit=abc1234"
var (
	Version = "0.3.0-dev"
	Commit  = ""
)

func String() string {
	if len(Commit) >= 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}
