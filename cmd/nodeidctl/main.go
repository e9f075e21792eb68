// Command nodeidctl talks to a running identityd.
//
// Usage:
//
//	nodeidctl [-addr host:port] [-ca file] [-timeout d] <command> [args]
//
// Commands:
//
//	generate                 print a fresh instance node identifier
//	session <instance>       print a fresh session of instance
//	parse <type> <input>     validate input as type on the server
//	name <type> <id>         resolve the display name of id
//	bind <session> <name>    bind name to an instance or logical node session
//	names [filter]           dump name associations, optionally CEL-filtered
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zero-day-ai/identity/nodeid"
	"github.com/zero-day-ai/identity/serve"
)

var errUsage = errors.New("usage: nodeidctl [flags] generate|session|parse|name|bind|names [args]")

func main() {
	addr := flag.String("addr", "localhost:50051", "identityd address")
	caFile := flag.String("ca", "", "CA certificate for TLS; plaintext when empty")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	creds := insecure.NewCredentials()
	if *caFile != "" {
		var err error
		creds, err = credentials.NewClientTLSFromFile(*caFile, "")
		if err != nil {
			log.Fatalf("Failed to load CA certificate: %v", err)
		}
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	svc, err := nodeid.NewService()
	if err != nil {
		log.Fatalf("Failed to create node identifier service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, serve.NewClient(conn, svc), svc, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(out)
}

func run(ctx context.Context, client *serve.Client, svc *nodeid.Service, args []string) (string, error) {
	if len(args) == 0 {
		return "", errUsage
	}

	switch cmd, args := args[0], args[1:]; cmd {
	case "generate":
		id, err := client.GenerateInstanceNode(ctx)
		if err != nil {
			return "", err
		}
		return id.String(), nil

	case "session":
		if len(args) != 1 {
			return "", errUsage
		}
		instance, err := svc.ParseInstanceNode(args[0])
		if err != nil {
			return "", err
		}
		session, err := client.GenerateInstanceNodeSession(ctx, instance)
		if err != nil {
			return "", err
		}
		return session.String(), nil

	case "parse":
		if len(args) != 2 {
			return "", errUsage
		}
		t, err := nodeid.ParseType(args[0])
		if err != nil {
			return "", err
		}
		id, err := client.Parse(ctx, args[1], t)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s", id.Type(), id.String()), nil

	case "name":
		if len(args) != 2 {
			return "", errUsage
		}
		id, err := parseLocal(svc, args[0], args[1])
		if err != nil {
			return "", err
		}
		return client.DisplayName(ctx, id)

	case "bind":
		if len(args) != 2 {
			return "", errUsage
		}
		session, err := parseSession(svc, args[0])
		if err != nil {
			return "", err
		}
		if err := client.AssociateDisplayName(ctx, session, args[1]); err != nil {
			return "", err
		}
		return "ok", nil

	case "names":
		filter := ""
		if len(args) > 0 {
			filter = args[0]
		}
		return client.NameAssociations(ctx, filter)

	default:
		return "", fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func parseLocal(svc *nodeid.Service, typ, input string) (nodeid.NodeIdentifier, error) {
	t, err := nodeid.ParseType(typ)
	if err != nil {
		return nil, err
	}
	return svc.Parse(input, t)
}

func parseSession(svc *nodeid.Service, input string) (nodeid.NodeIdentifier, error) {
	if id, err := svc.ParseInstanceNodeSession(input); err == nil {
		return id, nil
	}
	return svc.ParseLogicalNodeSession(input)
}
