package minuit

import (
	"context"
	"fmt"
	"path"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/wire"
)

// UpdateNamespace walks the peer namespace breadth first and mirrors it
// into the local tree. Mirrored parameters take the remote type, value,
// access mode and range, and the peer is asked to stream their changes.
func (p *Protocol) UpdateNamespace(ctx context.Context) error {
	p.mu.Lock()
	host := p.host
	p.mu.Unlock()
	if host == nil {
		return fmt.Errorf("%w: minuit protocol not attached", model.ErrTransport)
	}

	queue := []string{"/"}
	mirrored := 0
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]

		args, err := p.request(ctx, verbNamespace, addr)
		if err != nil {
			return err
		}
		info, err := parseNodeInfo(args)
		if err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
		if info.Kind == kindData {
			if err := p.mirror(ctx, host, addr); err != nil {
				return err
			}
			mirrored++
		} else if addr != "/" {
			if _, err := host.Root().FindOrCreate(addr); err != nil {
				return err
			}
		}
		for _, child := range info.Nodes {
			queue = append(queue, path.Join(addr, child))
		}
	}
	p.logger.Info("namespace mirrored", "parameters", mirrored)
	return nil
}

// get requests one attribute of a remote node.
func (p *Protocol) get(ctx context.Context, addr, attr string) ([]any, error) {
	return p.request(ctx, verbGet, addr+":"+attr)
}

func (p *Protocol) mirror(ctx context.Context, host model.Host, addr string) error {
	n, err := host.Root().FindOrCreate(addr)
	if err != nil {
		return err
	}

	typArgs, err := p.get(ctx, addr, attrType)
	if err != nil {
		return err
	}
	typName, err := stringArg(typArgs, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", addr, err)
	}
	typ := parseTypeName(typName)

	param, ok := n.Parameter()
	if ok && param.Type() != typ {
		if err := n.RemoveParameter(); err != nil {
			return err
		}
		ok = false
	}
	if !ok {
		if param, err = n.CreateParameter(typ); err != nil {
			return err
		}
	}

	valArgs, err := p.get(ctx, addr, attrValue)
	if err != nil {
		return err
	}
	if v, err := wire.ValueFromArguments(valArgs); err == nil {
		if err := host.Replicate(p, addr, v); err != nil {
			p.logger.Debug("mirrored value rejected", "address", addr, "err", err)
		}
	}

	if args, err := p.get(ctx, addr, attrService); err == nil {
		if s, err := stringArg(args, 0); err == nil {
			param.SetAccess(parseService(s))
		}
	}
	if args, err := p.get(ctx, addr, attrRangeBounds); err == nil && len(args) == 2 {
		lo, errLo := wire.ValueFromArguments(args[:1])
		hi, errHi := wire.ValueFromArguments(args[1:])
		if errLo == nil && errHi == nil {
			if d, err := domain.Range(lo, hi); err == nil {
				if err := param.SetDomain(d); err != nil {
					p.logger.Debug("mirrored range rejected", "address", addr, "err", err)
				}
			}
		}
	}
	if args, err := p.get(ctx, addr, attrClipmode); err == nil {
		if s, err := stringArg(args, 0); err == nil {
			param.SetBounding(parseClipName(s))
		}
	}
	if args, err := p.get(ctx, addr, attrDescription); err == nil {
		if s, err := stringArg(args, 0); err == nil && s != "" {
			n.SetDescription(s)
		}
	}

	return p.send(p.message(false, verbListen, addr+":"+attrValue, "enable"))
}
