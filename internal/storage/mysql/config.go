package mysql

import (
	"net"
	"strconv"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
)

// Config describes the MySQL connection and its pool.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// LogLevel is the gorm log level: silent, error, warn or info.
	LogLevel string `yaml:"log_level"`
}

// DSN renders the driver connection string. Times are parsed and stored in UTC.
func (c Config) DSN() string {
	dc := mysqldrv.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.DBName
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}
