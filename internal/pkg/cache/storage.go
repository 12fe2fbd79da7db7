package cache

import (
	"log"
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"
)

// NewFiberStorage returns a fiber.Storage on the shared Redis server using a
// separate logical database. It returns nil when Redis is unreachable, which
// makes fiber middlewares keep their state in memory.
func NewFiberStorage(database int) (storage fiber.Storage) {
	if client == nil {
		return nil
	}
	opts := client.Options()
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	// storage/redis panics when the initial ping fails
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Warning: Redis storage unavailable, using memory: %v", r)
			storage = nil
		}
	}()
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: opts.Username,
		Password: opts.Password,
		Database: database,
		Reset:    false,
	})
}
