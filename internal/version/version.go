package version

// Tag holds the build version of the certify binaries. Override at build time:
// go build -ldflags "-X github.com/corvusHold/certify/internal/version.Tag=v1.2.3".
var Tag = "dev"

// String returns Tag, or "dev" when it is empty.
func String() string {
	if Tag == "" {
		return "dev"
	}
	return Tag
}
