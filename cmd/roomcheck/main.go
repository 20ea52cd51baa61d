package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/cheese-rooms/internal/httpapi"
	"github.com/park285/cheese-rooms/internal/room"
	"github.com/park285/cheese-rooms/internal/roomclient"
)

func main() {
	baseURL := flag.String("url", os.Getenv("ROOMD_URL"), "roomd base URL")
	host := flag.String("host", "checkhost", "host nickname")
	guest := flag.String("guest", "checkguest", "guest nickname")
	move := flag.String("move", "e2e4", "UCI move played by the host, empty to skip")
	watch := flag.Duration("watch", 5*time.Second, "how long to observe the stream")
	flag.Parse()

	if *baseURL == "" {
		log.Fatal("ROOMD_URL or -url is required")
	}

	hostClient := roomclient.New(*baseURL, roomclient.WithTimeout(8*time.Second))
	guestClient := roomclient.New(*baseURL, roomclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hostClient.Health(ctx); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Println("/healthz ok")

	ref, err := hostClient.CreateRoom(ctx, httpapi.CreateRequest{Nickname: *host})
	if err != nil {
		log.Fatalf("create error: %v", describe(err))
	}
	log.Printf("create ok: room=%s doc=%s", ref.RoomID, ref.DocID)

	stream := hostClient.Watch(ref.RoomID, 5, time.Second)
	stream.OnStateChange(func(state roomclient.State) {
		log.Printf("WS state: %s", state)
	})
	stream.OnSnapshot(func(r *room.Room) {
		fmt.Printf("WS snapshot room=%s guest=%q position=%q moves=%d outcome=%q\n",
			r.RoomID, r.GuestUser, r.Position(), len(r.History), r.Outcome)
	})
	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := stream.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
	}

	if _, err := guestClient.JoinRoom(ctx, ref.RoomID, *guest); err != nil {
		log.Fatalf("join error: %v", describe(err))
	}
	log.Printf("join ok: guest=%s", *guest)

	if *move != "" {
		if err := hostClient.PlayMove(ctx, ref.RoomID, *move); err != nil {
			log.Printf("move error: %v", describe(err))
		} else {
			log.Printf("move ok: %s", *move)
		}
	}

	r, err := guestClient.ReadRoom(ctx, ref.RoomID)
	if err != nil {
		log.Fatalf("read error: %v", describe(err))
	}
	log.Printf("read ok: host=%s guest=%s filled=%v position=%s", r.HostUser, r.GuestUser, r.Filled(), r.Position())

	// Observe for a short window
	t := time.NewTimer(*watch)
	<-t.C

	_ = stream.Close(context.Background())
}

func describe(err error) string {
	var apiErr *roomclient.APIError
	if errors.As(err, &apiErr) && apiErr.Body.Kind != "" {
		return fmt.Sprintf("%s (%s): %s", apiErr.Body.Kind, apiErr.Body.Key, apiErr.Body.Message)
	}
	return err.Error()
}
