package sqlite

import (
	"strings"
	"time"
)

// Memory is the file name that keeps the database in memory.
const Memory = ":memory:"

type Config struct {
	file     string
	durable  bool
	workers  int
	batches  int
	cooldown time.Duration
}

// File sets the path of the database file. [Memory] keeps the database in memory.
func (c *Config) File(file string) {
	file = strings.TrimSpace(file)
	if file == "" {
		panic("file can't be blank")
	}
	if strings.Contains(file, "?") {
		panic("file can't contain ?")
	}
	c.file = file
}

// Durable makes every commit wait for the file to be synced to disk.
func (c *Config) Durable(durable bool) {
	c.durable = durable
}

// Workers sets the number of connections that may be used at the same time.
func (c *Config) Workers(workers int) {
	if workers < 1 {
		panic("workers can't be < 1")
	}
	c.workers = workers
}

// Batches sets how many batches a single [Storage.Claim] returns at most.
func (c *Config) Batches(batches int) {
	if batches < 1 {
		panic("batches can't be < 1")
	}
	c.batches = batches
}

// Cooldown sets how long a released batch can't be claimed again.
func (c *Config) Cooldown(cooldown time.Duration) {
	if cooldown < 0 {
		panic("cooldown can't be < 0")
	}
	c.cooldown = cooldown
}
