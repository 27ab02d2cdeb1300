// caskdb-bench is a small load generator and smoke-test client for caskdb.
//
// Usage:
//
//	caskdb-bench [flags]
//
// Flags:
//
//	-addr string     Server address (default "localhost:2288")
//	-clients int     Number of parallel clients (default 50)
//	-requests int    Total number of requests (default 100000)
//	-test string     Test type: set,get,mixed,ping (default "mixed")
//	-smoke           Run a single-connection correctness smoke test and exit
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caskdb/caskdb/internal/wire"
)

// frameReader reads one decoded wire.Value at a time off conn, growing its
// buffer as needed — a blocking adapter over the non-blocking decoder.
type frameReader struct {
	r   *bufio.Reader
	buf []byte
}

func newFrameReader(conn net.Conn) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(conn, 64*1024)}
}

func (f *frameReader) readValue() (wire.Value, error) {
	for {
		v, n, err := wire.Decode(f.buf)
		if err == nil {
			f.buf = f.buf[n:]
			return v, nil
		}
		if err != wire.ErrIncomplete {
			return wire.Value{}, err
		}

		chunk := make([]byte, 4096)
		n2, rerr := f.r.Read(chunk)
		if n2 > 0 {
			f.buf = append(f.buf, chunk[:n2]...)
		}
		if rerr != nil {
			return wire.Value{}, rerr
		}
	}
}

func main() {
	addr := flag.String("addr", "localhost:2288", "Server address")
	clients := flag.Int("clients", 50, "Number of parallel clients")
	requests := flag.Int("requests", 100000, "Total number of requests")
	testType := flag.String("test", "mixed", "Test type: set,get,mixed,ping")
	smoke := flag.Bool("smoke", false, "Run a single-connection correctness smoke test and exit")
	flag.Parse()

	if *smoke {
		if err := runSmokeTest(*addr); err != nil {
			fmt.Fprintf(os.Stderr, "smoke test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("smoke test passed")
		return
	}

	runBenchmark(*addr, *clients, *requests, *testType)
}

func runBenchmark(addr string, clients, requests int, testType string) {
	fmt.Println("====== caskdb benchmark ======")
	fmt.Printf("Server: %s\n", addr)
	fmt.Printf("Clients: %d\n", clients)
	fmt.Printf("Requests: %d\n", requests)
	fmt.Printf("Test: %s\n", testType)
	fmt.Println()

	var completed int64
	var errCount int64
	reqPerClient := requests / clients

	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			conn, err := net.Dial("tcp", addr)
			if err != nil {
				atomic.AddInt64(&errCount, int64(reqPerClient))
				return
			}
			defer conn.Close()

			enc := wire.NewEncoder(conn)
			fr := newFrameReader(conn)

			for j := 0; j < reqPerClient; j++ {
				key := fmt.Sprintf("key:%d:%d", clientID, j)
				value := fmt.Sprintf("value:%d:%d", clientID, j)

				var cmd [][]byte
				switch testType {
				case "set":
					cmd = [][]byte{[]byte("SET"), []byte(key), []byte(value)}
				case "get":
					cmd = [][]byte{[]byte("GET"), []byte(key)}
				case "ping":
					cmd = [][]byte{[]byte("PING")}
				default: // mixed
					if j%2 == 0 {
						cmd = [][]byte{[]byte("SET"), []byte(key), []byte(value)}
					} else {
						cmd = [][]byte{[]byte("GET"), []byte(key)}
					}
				}

				if err := enc.WriteArray(cmd); err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				if _, err := fr.readValue(); err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&completed, 1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("====== Results ======")
	fmt.Printf("Total time: %v\n", elapsed)
	fmt.Printf("Completed: %d\n", completed)
	fmt.Printf("Errors: %d\n", errCount)
	fmt.Printf("Requests/sec: %.2f\n", float64(completed)/elapsed.Seconds())
}

// runSmokeTest exercises PING, SET, GET and QUIT against a live server over
// a single connection and checks the PING and GET replies by hand.
func runSmokeTest(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	enc := wire.NewEncoder(conn)
	fr := newFrameReader(conn)

	if err := enc.WriteArray([][]byte{[]byte("PING")}); err != nil {
		return err
	}
	v, err := fr.readValue()
	if err != nil {
		return err
	}
	if v.Str != "PONG" {
		return fmt.Errorf("expected PONG, got %q", v.Str)
	}

	if err := enc.WriteArray([][]byte{[]byte("SET"), []byte("smoke"), []byte("ok")}); err != nil {
		return err
	}
	if _, err := fr.readValue(); err != nil {
		return err
	}

	if err := enc.WriteArray([][]byte{[]byte("GET"), []byte("smoke")}); err != nil {
		return err
	}
	v, err = fr.readValue()
	if err != nil {
		return err
	}
	if v.Str != "ok" {
		return fmt.Errorf("expected 'ok', got %q", v.Str)
	}

	if err := enc.WriteArray([][]byte{[]byte("QUIT")}); err != nil {
		return err
	}
	if _, err := fr.readValue(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
