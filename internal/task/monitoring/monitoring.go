package monitoring

import (
	"fmt"
	"net"
	"regexp"

	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/steps"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

const (
	NodeConfigPath   = "/etc/munin/munin-node.conf"
	MasterConfigPath = "/etc/munin/munin.conf"
	// loopbackAllow is the regex munin-node ships in its allow line.
	loopbackAllow = `127\.0\.0\.1`
)

type NodeConfig struct {
	HQ          string `yaml:"hq"`
	AddToMaster bool   `yaml:"add_to_master"`
	Hostname    string `yaml:"hostname"`
	ServerIP    string `yaml:"server_ip"`
}

// Operations returns the monitoring operations.
func Operations() []task.Operation {
	return []task.Operation{
		task.OperationFor("install_munin_node", "Install munin-node and register it with the Munin master", "install_munin_node.yaml",
			[]task.Param{
				{Key: "hq", Required: true, Description: "IP address of the Munin master"},
				{Key: "add_to_master", Description: "append this node to munin.conf on the master"},
				{Key: "hostname", Description: "node name on the master"},
				{Key: "server_ip", Description: "address the master polls"},
			},
			buildNode),
	}
}

func buildNode(cfg NodeConfig, inv task.Invocation) ([]task.Task, error) {
	if net.ParseIP(cfg.HQ) == nil {
		return nil, fmt.Errorf("hq %q is not an IP address", cfg.HQ)
	}
	if cfg.AddToMaster {
		if cfg.Hostname == "" {
			return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "hostname"}
		}
		if cfg.ServerIP == "" {
			return nil, &task.MissingParameterError{Operation: inv.Operation, Key: "server_ip"}
		}
		if err := taskutil.ValidateIdentifier("hostname", cfg.Hostname); err != nil {
			return nil, err
		}
		if net.ParseIP(cfg.ServerIP) == nil {
			return nil, fmt.Errorf("server_ip %q is not an IP address", cfg.ServerIP)
		}
	}

	edits := steps.Edits{Strict: inv.Strict}
	tasks := []task.Task{
		steps.AptInstall("munin-node"),
		edits.Replace(NodeConfigPath, loopbackAllow, regexp.QuoteMeta(cfg.HQ)),
		steps.Service("munin-node", "restart"),
	}
	if !cfg.AddToMaster {
		return tasks, nil
	}

	// Appends skip lines already present, so the node block is written once.
	return append(tasks, &steps.OnServer{
		HostString: net.JoinHostPort(cfg.HQ, "22"),
		Dial:       inv.Dial,
		Runner:     inv.Runner,
		Tasks: []task.Task{
			edits.Append(MasterConfigPath, "["+cfg.Hostname+"]"),
			edits.Append(MasterConfigPath, "    address "+cfg.ServerIP),
		},
	}), nil
}
