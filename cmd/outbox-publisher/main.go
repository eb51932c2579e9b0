package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-checkout/internal/bootstrap"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-checkout/pkg/pubsub"
)

const service = "outbox-publisher"

func main() {
	requeue := flag.String("requeue", "", "return a dead-lettered event id to the relay and exit")
	listDead := flag.Int("dead-letters", 0, "print the N most recent dead letters and exit")
	flag.Parse()

	rt, err := bootstrap.Start(context.Background(), service)
	if err != nil {
		bootstrap.Exit(service, err)
	}
	ctx, stop := rt.Context()

	store := outbox.NewStore(rt.DB.DB())
	switch {
	case *requeue != "":
		err = requeueEvent(ctx, store, *requeue)
	case *listDead > 0:
		err = printDeadLetters(ctx, store, *listDead)
	default:
		err = relay(ctx, rt, store)
	}

	stop()
	code := 0
	if err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(ctx, "outbox publisher failed", err)
		code = 1
	}
	rt.Close()
	os.Exit(code)
}

func relay(ctx context.Context, rt *bootstrap.Runtime, store *outbox.Store) error {
	catalog, err := registry.NewCatalog(rt.Config.PubSub)
	if err != nil {
		return err
	}
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, catalog.Topics(), rt.Logger)
	if err != nil {
		return err
	}
	rt.OnClose("pubsub", client.Close)

	sink := newTopicSink(client)
	rt.OnClose("publishers", func() error {
		sink.Stop()
		return nil
	})

	r, err := NewRelay(RelayParams{
		Config:  rt.Config.Outbox,
		Logger:  rt.Logger,
		Tx:      rt.DB,
		Store:   store,
		Catalog: catalog,
		Sink:    sink,
		Metrics: metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Checks: map[string]func(context.Context) error{
			"database": rt.DB.Ping,
			"pubsub":   client.Ping,
		},
	})
	if err != nil {
		return err
	}
	rt.Logger.Info(ctx, "starting outbox publisher")
	err = r.Run(ctx)
	if errors.Is(err, context.Canceled) {
		rt.Logger.Info(ctx, "outbox publisher stopped")
	}
	return err
}

func requeueEvent(ctx context.Context, store *outbox.Store, raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	if err := store.Requeue(ctx, id); err != nil {
		return err
	}
	fmt.Println("requeued", id)
	return nil
}

func printDeadLetters(ctx context.Context, store *outbox.Store, limit int) error {
	rows, err := store.DeadLetters(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tTYPE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
	for _, r := range rows {
		msg := ""
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.EventID, r.EventType, r.ErrorReason, r.AttemptCount, r.FailedAt.Format(time.RFC3339), msg)
	}
	return w.Flush()
}
