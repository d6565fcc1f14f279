package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/recachelabs/recache/pkg/server"
	"github.com/spf13/pflag"
)

// recache-bench fires n concurrent clients at a running server, each doing
// one put followed by one get of its own key.
func main() {
	n := pflag.IntP("clients", "n", 10, "Number of concurrent clients")
	address := pflag.String("address", "localhost:5051", "Server address")
	pflag.Parse()

	var wg sync.WaitGroup
	wg.Add(*n)
	start := time.Now()
	for i := 0; i < *n; i++ {
		go func(id int) {
			defer wg.Done()
			client, err := server.Dial(*address)
			if err != nil {
				fmt.Printf("Error connecting client %d: %v\n", id, err)
				return
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			key := fmt.Sprintf("key%d", id)
			if _, err := client.Put(ctx, key, fmt.Sprintf("value%d", id)); err != nil {
				fmt.Printf("Error putting %s: %v\n", key, err)
				return
			}
			if _, err := client.Get(ctx, key); err != nil {
				fmt.Printf("Error getting %s: %v\n", key, err)
			}
		}(i)
	}
	wg.Wait()
	fmt.Printf("%d clients finished in %s\n", *n, time.Since(start))
}
