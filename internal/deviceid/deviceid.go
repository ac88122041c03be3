// Package deviceid reads this node's fleet identity from a local file.
//
// The hw_id / device_id pair is an opaque string minted once when a box is
// provisioned; every box-side component (ingress HTTP, broker consumer,
// sync worker) needs it to tag outbound messages and filter inbound ones.
// Reading it is a startup-fatal operation per spec §7: a box with no
// identity cannot participate in the fleet at all.
package deviceid

import (
	"os"
	"strings"

	"github.com/fyuneru/boxnet/errors"
)

// Read loads the device id from path, trimming surrounding whitespace. An
// empty file (or a file containing only whitespace) is treated as a
// missing id and returns an error, since every downstream consumer assumes
// a non-empty identity.
func Read(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read device id from %s", path)
	}
	id := strings.TrimSpace(string(raw))
	if id == "" {
		return "", errors.Newf("device id file %s is empty", path)
	}
	return id, nil
}
