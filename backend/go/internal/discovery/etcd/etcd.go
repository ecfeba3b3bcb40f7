package etcd

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/synapse/"

// Node 是一个已注册的服务实例。
type Node struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// ServiceDiscovery 在 etcd 中登记和查找服务实例。
type ServiceDiscovery struct {
	cli *clientv3.Client
	log *logger.Logger
}

// NewServiceDiscovery 连接 etcd。
func NewServiceDiscovery(cfg *config.EtcdConfig, log *logger.Logger) (*ServiceDiscovery, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("未配置 etcd endpoints")
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 etcd 失败: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ServiceDiscovery{cli: cli, log: log.WithField("component", "discovery")}, nil
}

func serviceKey(service string) string {
	return keyPrefix + service + "/"
}

// Registration 是一次带租约的注册，Close 时撤销租约。
type Registration struct {
	sd      *ServiceDiscovery
	lease   clientv3.LeaseID
	key     string
	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Once
}

// Register 以 ttl 秒的租约登记实例，并在后台续约直到 Close。
func (s *ServiceDiscovery) Register(ctx context.Context, service string, node Node, ttl int64) (*Registration, error) {
	leaseResp, err := s.cli.Grant(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("申请 etcd 租约失败: %w", err)
	}
	key := serviceKey(service) + node.ID
	if _, err := s.cli.Put(ctx, key, node.Address, clientv3.WithLease(leaseResp.ID)); err != nil {
		return nil, fmt.Errorf("写入注册信息失败: %w", err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	keepAliveCh, err := s.cli.KeepAlive(kaCtx, leaseResp.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("续约失败: %w", err)
	}

	r := &Registration{sd: s, lease: leaseResp.ID, key: key, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for range keepAliveCh {
		}
		if kaCtx.Err() == nil {
			s.log.WithField("key", key).Warn("etcd 租约已失效")
		}
	}()
	s.log.WithPayload(map[string]interface{}{"key": key, "address": node.Address}).Info("已注册到 etcd")
	return r, nil
}

// Close 停止续约并撤销租约，键随租约一起删除。
func (r *Registration) Close(ctx context.Context) error {
	var err error
	r.closeMu.Do(func() {
		r.cancel()
		<-r.done
		if _, e := r.sd.cli.Revoke(ctx, r.lease); e != nil {
			err = fmt.Errorf("撤销租约失败: %w", e)
		}
	})
	return err
}

// Discover 列出某个服务当前登记的实例，按 ID 排序。
func (s *ServiceDiscovery) Discover(ctx context.Context, service string) ([]Node, error) {
	resp, err := s.cli.Get(ctx, serviceKey(service), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("查询 etcd 失败: %w", err)
	}
	nodes := make([]Node, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		nodes = append(nodes, Node{ID: path.Base(string(kv.Key)), Address: string(kv.Value)})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// Close 关闭 etcd 客户端。
func (s *ServiceDiscovery) Close() error {
	return s.cli.Close()
}
