package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"DealPilot/sdk/go/dealpilot"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "daemon base url")
	item := flag.String("item", "Margherita Pizza", "food item to compare")
	flag.Parse()

	client, err := dealpilot.NewClient(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	submitted, err := client.Submit(ctx, dealpilot.TaskSubmission{
		Persona: "foodie",
		Params:  map[string]any{"food_item": *item, "action": "search"},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("submitted task %s (status=%s)\n", submitted.ID, submitted.Status)

	err = client.Stream(ctx, submitted.ID, func(ev dealpilot.Event) error {
		if ev.Type == "log" {
			fmt.Println(ev.Message)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "stream:", err)
	}

	final, err := client.Get(ctx, submitted.ID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("task %s finished with status=%s result=%v\n", final.ID, final.Status, final.Result)
}
