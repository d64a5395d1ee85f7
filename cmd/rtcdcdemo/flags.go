package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagListen     string
	flagConnect    string
	flagLabel      string
	flagProtocol   string
	flagBinary     bool
	flagSTUNServer string
	flagHelp       bool
	flagVersion    bool
)

func init() {
	flag.StringVarP(&flagListen, "listen", "l", "", "Run the signaling relay and wait for a peer (address:port)")
	flag.StringVarP(&flagConnect, "connect", "c", "", "Connect to a relay started with --listen (ws://address:port/ws)")
	flag.StringVarP(&flagLabel, "label", "n", "demo", "Data channel label to open")
	flag.StringVarP(&flagProtocol, "protocol", "p", "", "Data channel subprotocol")
	flag.BoolVarP(&flagBinary, "binary", "b", false, "Send the channel's hello message as binary instead of a string")
	flag.StringVarP(&flagSTUNServer, "stun-address", "s", "", "STUN server URL (e.g. stun:stun.l.google.com:19302)")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Loopback demo for two PeerConnections exchanging a data channel

Usage: rtcdcdemo --listen ADDR
       rtcdcdemo --connect ws://ADDR/ws

Signaling:
  -l, --listen=ADDR      Run the relay and answer (default: disabled)
  -c, --connect=URL      Connect to a relay's /ws endpoint and offer first

Data channel:
  -n, --label=STRING     Data channel label to open (default: demo)
  -p, --protocol=STRING  Data channel subprotocol (default: empty)
  -b, --binary           Send the hello message as binary, not string

ICE:
  -s, --stun-address=URL STUN server URL (default: none, host candidates only)

  -h, --help             Print usage information and exit
  -v, --version          Print version information and exit
`

const version = "rtcdcdemo 0.1.0"

func help() {
	banner := color.New(color.FgCyan, color.Bold)
	banner.Println(`
  _ __ | |_ ___ __| | ___
 | '__|| __/ __/ _` + "`" + ` |/ __|
 | |   | || (__| (_| | (__
 |_|    \__\___\__,_|\___|  demo`)
	fmt.Println(helpString)
}
