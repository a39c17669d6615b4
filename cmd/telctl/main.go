// Command telctl inspects and serves Transaction Event Log databases. It is
// a thin operational wrapper around the telix core and replication
// packages — none of its own logic belongs to the TEL event model itself.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kerilib/telix"
	"github.com/kerilib/telix/replication"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "telctl"
	app.Usage = "inspect, verify and replicate Transaction Event Log databases"
	app.Version = "0.1.0"
	app.Writer = os.Stdout
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "db",
			Usage: "SQLite DSN for the event database",
			Value: "tel.db",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "inspect",
			Usage: "print a stream's stored size and folded state",
			Subcommands: []cli.Command{
				{
					Name:  "management",
					Usage: "inspect a management (registry) TEL",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "id", Usage: "registry identifier prefix"},
					},
					Action: inspectManagement,
				},
				{
					Name:  "vc",
					Usage: "inspect a VC TEL",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "id", Usage: "credential identifier prefix"},
					},
					Action: inspectVC,
				},
			},
		},
		{
			Name:  "verify",
			Usage: "fold a stream end to end and report the first error, if any",
			Subcommands: []cli.Command{
				{
					Name:  "management",
					Usage: "verify a management TEL",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "id", Usage: "registry identifier prefix"},
					},
					Action: verifyManagement,
				},
			},
		},
		{
			Name:  "serve",
			Usage: "accept pushed VerifiableEvents over HTTPS",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr", Value: ":8443", Usage: "listen address"},
				cli.StringFlag{Name: "cert", Usage: "TLS certificate file"},
				cli.StringFlag{Name: "key", Usage: "TLS key file"},
				cli.StringFlag{Name: "id", Usage: "registry identifier prefix to accept events for"},
			},
			Action: serve,
		},
	}
	return app
}

func openDatabase(c *cli.Context) (telix.EventDatabase, error) {
	dsn := c.GlobalString("db")
	if dsn == "" {
		dsn = c.String("db")
	}
	return telix.OpenSQLiteEventDatabase(dsn)
}

func parsePrefix(c *cli.Context) (telix.IdentifierPrefix, error) {
	id := c.String("id")
	if id == "" {
		return telix.IdentifierPrefix{}, fmt.Errorf("telctl: --id is required")
	}
	return telix.ParseIdentifierPrefix(id)
}

func inspectManagement(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := parsePrefix(c)
	if err != nil {
		return err
	}
	processor, err := telix.NewEventProcessor(db, telix.DefaultDigester)
	if err != nil {
		return err
	}
	raw, err := processor.GetManagementEvents(id)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s of event data\n", id, humanize.Bytes(uint64(len(raw))))
	state, err := processor.GetManagementTelState(id)
	if err != nil {
		return err
	}
	fmt.Printf("sn=%d issuer=%s backers=%v\n", state.SN, state.Issuer, state.Backers)
	return nil
}

func inspectVC(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := parsePrefix(c)
	if err != nil {
		return err
	}
	processor, err := telix.NewEventProcessor(db, telix.DefaultDigester)
	if err != nil {
		return err
	}
	raw, err := processor.GetEvents(id)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s of event data\n", id, humanize.Bytes(uint64(len(raw))))
	state, err := processor.GetVCState(id)
	if err != nil {
		return err
	}
	fmt.Printf("lifecycle=%d\n", state.Lifecycle)
	return nil
}

func verifyManagement(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := parsePrefix(c)
	if err != nil {
		return err
	}
	processor, err := telix.NewEventProcessor(db, telix.DefaultDigester)
	if err != nil {
		return err
	}
	state, err := processor.GetManagementTelState(id)
	if err != nil {
		return fmt.Errorf("telctl: chain invalid: %w", err)
	}
	fmt.Printf("ok: sn=%d\n", state.SN)
	return nil
}

func serve(c *cli.Context) error {
	log := logrus.New()
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := parsePrefix(c)
	if err != nil {
		return err
	}
	processor, err := telix.NewEventProcessor(db, telix.DefaultDigester)
	if err != nil {
		return err
	}
	tel := telix.NewTEL(processor, telix.DefaultDigester)

	srv := replication.NewServer(log)
	srv.RegisterTEL(id, tel)

	cert := c.String("cert")
	key := c.String("key")
	addr := c.String("addr")
	log.WithField("addr", addr).Info("starting telctl serve")
	if cert == "" || key == "" {
		return fmt.Errorf("telctl: --cert and --key are required")
	}
	return srv.ListenAndServeTLS(addr, cert, key)
}
