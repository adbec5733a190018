// Command sweetgossip-cli runs a single standalone node over a real TCP
// transport: connect out to a set of peers, then issue one of broadcast,
// offers, or pay as a one-shot operation. Flag/command shape modeled on
// cmd/lncli/cmd_send_onion.go's actionDecorator pattern, generalized since
// this tool talks to an in-process Node rather than an RPC server (spec.md's
// Non-goals exclude a daemon/RPC surface).
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gossip"
	"github.com/sweetgossip/sweetgossip/gpayment"
	"github.com/sweetgossip/sweetgossip/transport"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "sweetgossip-cli"
	app.Usage = "talk to a single sweetgossip node over a real TCP transport"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "name", Value: "cli-node"},
		cli.StringFlag{Name: "listen", Value: "127.0.0.1:0"},
		cli.StringFlag{Name: "peers", Usage: "comma-separated host:port list to connect to on startup"},
	}

	app.Commands = []cli.Command{
		broadcastCommand,
		offersCommand,
		payCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sweetgossip-cli:", err)
		os.Exit(1)
	}
}

var broadcastCommand = cli.Command{
	Name:  "broadcast",
	Usage: "originate a request for a topic and print its request id",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "topic", Usage: "topic bytes, as a plain string"},
	},
	Action: actionDecorator(broadcast),
}

func broadcast(ctx *cli.Context) error {
	node, closeFn, err := nodeFromContext(ctx, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	topic := ctx.String("topic")
	if topic == "" {
		return fmt.Errorf("topic required")
	}

	reqID, err := node.Broadcast([]byte(topic))
	if err != nil {
		return err
	}

	fmt.Println(reqID)
	return nil
}

var offersCommand = cli.Command{
	Name:  "offers",
	Usage: "list collected offers for a topic id",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "topic-id"},
	},
	Action: actionDecorator(offers),
}

func offers(ctx *cli.Context) error {
	node, closeFn, err := nodeFromContext(ctx, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	topicID, err := uuid.Parse(ctx.String("topic-id"))
	if err != nil {
		return fmt.Errorf("topic-id: %w", err)
	}

	offers := node.GetOffers(topicID)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"replier", "network price", "replier price", "total"})
	for _, offer := range offers {
		t.AppendRow(table.Row{
			offer.ReplierCertificate.Subject,
			offer.TotalNetworkPrice,
			offer.ReplierPrice,
			offer.TotalNetworkPrice + offer.ReplierPrice,
		})
	}
	t.Render()

	return nil
}

var payCommand = cli.Command{
	Name:  "pay",
	Usage: "pay and decrypt the cheapest collected response from a replier",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "topic-id"},
		cli.StringFlag{Name: "replier-pubkey", Usage: "hex-encoded compressed public key"},
	},
	Action: actionDecorator(pay),
}

func pay(ctx *cli.Context) error {
	node, closeFn, err := nodeFromContext(ctx, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	topicID, err := uuid.Parse(ctx.String("topic-id"))
	if err != nil {
		return fmt.Errorf("topic-id: %w", err)
	}

	pubBytes, err := hex.DecodeString(ctx.String("replier-pubkey"))
	if err != nil {
		return fmt.Errorf("replier-pubkey: %w", err)
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("replier-pubkey: %w", err)
	}

	plaintext, err := node.PayAndReadResponse(topicID, pub)
	if err != nil {
		return err
	}

	fmt.Println(string(plaintext))
	return nil
}

// actionDecorator wraps a cli.ActionFunc so errors print with the command's
// usage attached, the same convention cmd/lncli's actionDecorator uses.
func actionDecorator(f cli.ActionFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if err := f(ctx); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}
}

// nodeFromContext builds a one-shot Node over a real TCP transport, dials
// every peer named in --peers, and returns a close function tearing the
// listener down. acceptBroadcast is nil: this CLI only ever drives the
// requester side of the protocol.
func nodeFromContext(ctx *cli.Context,
	acceptBroadcast gossip.AcceptBroadcastFunc) (*gossip.Node, func() error, error) {

	backend, _, err := transport.NewRotatingBackend("sweetgossip-cli.log")
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := backend.Logger("CLI")
	logger.SetLevel(btclog.LevelWarn)
	gossip.UseLogger(logger)
	transport.UseLogger(logger)

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	authority, err := cert.NewAuthority()
	if err != nil {
		return nil, nil, fmt.Errorf("new authority: %w", err)
	}

	name := ctx.GlobalString("name")

	paymentNetwork := gpayment.NewNetwork(clock.NewDefaultClock())
	channel := paymentNetwork.NewChannel(gpayment.Account(name))

	cfg := gossip.Config{
		Name:                             name,
		Certificate:                      authority.Issue(name, priv.PubKey()),
		PrivateKey:                       priv,
		PaymentChannel:                   channel,
		BroadcastConditionsTimeout:       5 * time.Second,
		BroadcastConditionsPOWScheme:     "sha256-leading-zero-bits",
		BroadcastConditionsPOWComplexity: 8,
		InvoicePaymentTimeout:            time.Minute,
	}

	node := gossip.NewNode(cfg, clock.NewDefaultClock(),
		func([]byte) bool { return true }, acceptBroadcast)
	node.SetHealthy(true)

	net, err := transport.NewTCPNetwork(ctx.GlobalString("listen"), "")
	if err != nil {
		return nil, nil, fmt.Errorf("listen: %w", err)
	}
	net.Register((*ccliEndpoint)(node))

	peers := ctx.GlobalString("peers")
	if peers != "" {
		for _, addr := range strings.Split(peers, ",") {
			if err := net.Connect(name, addr); err != nil {
				net.Close()
				return nil, nil, fmt.Errorf("connect %s: %w", addr, err)
			}
		}
	}

	return node, net.Close, nil
}

// ccliEndpoint adapts *gossip.Node to transport.Endpoint.
type ccliEndpoint gossip.Node

func (e *ccliEndpoint) Name() string                { return (*gossip.Node)(e).Name() }
func (e *ccliEndpoint) PublicKey() *btcec.PublicKey { return (*gossip.Node)(e).PublicKey() }
func (e *ccliEndpoint) AddPeer(p gossip.Peer)       { (*gossip.Node)(e).AddPeer(p) }
func (e *ccliEndpoint) OnMessage(from gossip.Peer, msg gossip.Message) {
	(*gossip.Node)(e).OnMessage(from, msg)
}
