// sm-plugindctl is the operator-facing counterpart to sm-plugind: a thin
// CLI that invokes a single volume plugin's Plugin.diagnostics script
// directly, bypassing the switch, for use when the daemon itself cannot be
// reached.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/xapi-project/xapi-storage-script/dispatch"
	"github.com/xapi-project/xapi-storage-script/plugin"
)

func main() {
	var root string
	flag.StringVarP(&root, "root", "r", "/var/lib/sm-plugins", "plugin root: <root>/volume and <root>/datapath")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 || args[0] != "diagnostics" {
		fmt.Fprintln(os.Stderr, "usage: sm-plugindctl diagnostics <plugin-name>")
		os.Exit(2)
	}
	pluginName := args[1]

	resolver := plugin.NewResolver(root)
	d := dispatch.New(resolver, pluginName, nil, nil, nil)

	result, rpcErr := d.Dispatch(context.Background(), "Query.diagnostics", nil)
	if rpcErr != nil {
		log.WithField("plugin", pluginName).WithError(rpcErr).Error("diagnostics call failed")
		out, _ := json.MarshalIndent(rpcErr, "", "  ")
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.WithError(err).Error("failed to encode diagnostics result")
		os.Exit(1)
	}
	fmt.Println(string(out))
}
