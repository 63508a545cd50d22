package zk

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	coordinator "kairos/internal/coordinator/iface"
	"kairos/internal/logger"

	"github.com/go-zookeeper/zk"
)

// zkConn is the subset of *zk.Conn used here
type zkConn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Exists(path string) (bool, *zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Delete(path string, version int32) error
	Close()
}

// zkCoordinator implements Locker with ephemeral nodes under root; a lock
// lives as long as the session that created it, so ttl is ignored.
type zkCoordinator struct {
	conn   zkConn
	root   string
	owner  string
	logger logger.Logger
}

// NewZKCoordinator connects to ZooKeeper. owner is written into lock nodes to identify the holder.
func NewZKCoordinator(servers []string, sessionTimeout time.Duration, root, owner string, log logger.Logger) (coordinator.Locker, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	log.Info("connected to zookeeper", logger.Any("servers", servers))
	return newCoordinator(conn, root, owner, log), nil
}

func newCoordinator(conn zkConn, root, owner string, log logger.Logger) *zkCoordinator {
	if root == "" {
		root = "/kairos/locks"
	}
	return &zkCoordinator{
		conn:   conn,
		root:   "/" + strings.Trim(root, "/"),
		owner:  owner,
		logger: log.With(logger.String("component", "zk_coordinator")),
	}
}

func (c *zkCoordinator) nodePath(key string) string {
	return path.Join(c.root, strings.ReplaceAll(key, "/", "_"))
}

func (c *zkCoordinator) TryAcquire(ctx context.Context, key string, ttl time.Duration) (coordinator.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodePath := c.nodePath(key)
	if err := c.ensureParentPath(nodePath); err != nil {
		return nil, err
	}

	_, err := c.conn.Create(nodePath, []byte(c.owner), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		return nil, coordinator.ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock node: %w", err)
	}

	c.logger.Debug("lock acquired", logger.String("path", nodePath))
	return &zkLock{coord: c, path: nodePath}, nil
}

func (c *zkCoordinator) Close() error {
	c.logger.Info("closing zookeeper connection")
	c.conn.Close()
	return nil
}

// ensureParentPath creates persistent parent nodes if they don't exist
func (c *zkCoordinator) ensureParentPath(nodePath string) error {
	parent := path.Dir(nodePath)
	if parent == "/" || parent == "." {
		return nil
	}

	exists, _, err := c.conn.Exists(parent)
	if err != nil {
		return fmt.Errorf("failed to check parent path: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.ensureParentPath(parent); err != nil {
		return err
	}
	_, err = c.conn.Create(parent, []byte{}, 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("failed to create parent path: %w", err)
	}
	return nil
}

type zkLock struct {
	coord *zkCoordinator
	path  string
}

func (l *zkLock) Release(ctx context.Context) error {
	data, stat, err := l.coord.conn.Get(l.path)
	if errors.Is(err, zk.ErrNoNode) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock node: %w", err)
	}
	if string(data) != l.coord.owner {
		l.coord.logger.Warn("lock node owned by another holder", logger.String("path", l.path))
		return nil
	}

	err = l.coord.conn.Delete(l.path, stat.Version)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	return nil
}
