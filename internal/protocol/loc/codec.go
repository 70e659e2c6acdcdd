package loc

import (
	"github.com/iop-labs/profiled/internal/protocol/wire"
)

// Marshal encodes the message envelope.
func (m *Message) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, m.ID)
	if m.Request != nil {
		buf = wire.AppendMessage(buf, 2, m.Request.Marshal())
	}
	if m.Response != nil {
		buf = wire.AppendMessage(buf, 3, m.Response.Marshal())
	}
	return buf
}

// Unmarshal decodes a message envelope.
func (m *Message) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			m.ID, err = d.Uint32()
		case 2:
			m.Request = &Request{}
			err = unmarshalField(d, m.Request)
		case 3:
			m.Response = &Response{}
			err = unmarshalField(d, m.Response)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

func unmarshalField(d *wire.Decoder, dst unmarshaler) error {
	body, err := d.RawBytes()
	if err != nil {
		return err
	}
	return dst.Unmarshal(body)
}

// Marshal encodes the request wrapper.
func (r *Request) Marshal() []byte {
	var buf []byte
	if r.RegisterService != nil {
		buf = wire.AppendMessage(buf, 1, r.RegisterService.Marshal())
	}
	if r.DeregisterService != nil {
		buf = wire.AppendMessage(buf, 2, r.DeregisterService.Marshal())
	}
	if r.GetNeighbourNodes != nil {
		buf = wire.AppendMessage(buf, 3, r.GetNeighbourNodes.Marshal())
	}
	if r.NeighbourhoodChanged != nil {
		buf = wire.AppendMessage(buf, 4, r.NeighbourhoodChanged.Marshal())
	}
	return buf
}

// Unmarshal decodes the request wrapper.
func (r *Request) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.RegisterService = &RegisterServiceRequest{}
			err = unmarshalField(d, r.RegisterService)
		case 2:
			r.DeregisterService = &DeregisterServiceRequest{}
			err = unmarshalField(d, r.DeregisterService)
		case 3:
			r.GetNeighbourNodes = &GetNeighbourNodesRequest{}
			err = unmarshalField(d, r.GetNeighbourNodes)
		case 4:
			r.NeighbourhoodChanged = &NeighbourhoodChangedNotification{}
			err = unmarshalField(d, r.NeighbourhoodChanged)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a response.
func (r *Response) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, uint32(r.Status))
	buf = wire.AppendString(buf, 2, r.Details)
	if r.GetNeighbourNodes != nil {
		buf = wire.AppendMessage(buf, 3, r.GetNeighbourNodes.Marshal())
	}
	return buf
}

// Unmarshal decodes a response.
func (r *Response) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			var v uint32
			v, err = d.Uint32()
			r.Status = Status(v)
		case 2:
			r.Details, err = d.String()
		case 3:
			r.GetNeighbourNodes = &GetNeighbourNodesResponse{}
			err = unmarshalField(d, r.GetNeighbourNodes)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a GPS position.
func (l *GPSLocation) Marshal() []byte {
	buf := wire.AppendSint32(nil, 1, l.Latitude)
	return wire.AppendSint32(buf, 2, l.Longitude)
}

// Unmarshal decodes a GPS position.
func (l *GPSLocation) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			l.Latitude, err = d.Sint32()
		case 2:
			l.Longitude, err = d.Sint32()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a service announcement.
func (s *ServiceInfo) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, uint32(s.Type))
	return wire.AppendUint32(buf, 2, s.Port)
}

// Unmarshal decodes a service announcement.
func (s *ServiceInfo) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			var v uint32
			v, err = d.Uint32()
			s.Type = ServiceType(v)
		case 2:
			s.Port, err = d.Uint32()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a registration request.
func (r *RegisterServiceRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.NodeID)
	if r.Location != nil {
		buf = wire.AppendMessage(buf, 2, r.Location.Marshal())
	}
	for _, s := range r.Services {
		buf = wire.AppendMessage(buf, 3, s.Marshal())
	}
	return buf
}

// Unmarshal decodes a registration request.
func (r *RegisterServiceRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.NodeID, err = d.Bytes()
		case 2:
			r.Location = &GPSLocation{}
			err = unmarshalField(d, r.Location)
		case 3:
			s := &ServiceInfo{}
			if err = unmarshalField(d, s); err == nil {
				r.Services = append(r.Services, s)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a deregistration request.
func (r *DeregisterServiceRequest) Marshal() []byte {
	return wire.AppendBytes(nil, 1, r.NodeID)
}

// Unmarshal decodes a deregistration request.
func (r *DeregisterServiceRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.NodeID, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a neighborhood subscription request.
func (r *GetNeighbourNodesRequest) Marshal() []byte {
	return wire.AppendBool(nil, 1, r.KeepAliveAndSendUpdates)
}

// Unmarshal decodes a neighborhood subscription request.
func (r *GetNeighbourNodesRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.KeepAliveAndSendUpdates, err = d.Bool()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a neighborhood snapshot.
func (r *GetNeighbourNodesResponse) Marshal() []byte {
	var buf []byte
	for _, n := range r.Nodes {
		buf = wire.AppendMessage(buf, 1, n.Marshal())
	}
	return buf
}

// Unmarshal decodes a neighborhood snapshot.
func (r *GetNeighbourNodesResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			n := &NodeInfo{}
			if err = unmarshalField(d, n); err == nil {
				r.Nodes = append(r.Nodes, n)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a node contact record.
func (n *NodeInfo) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, n.NodeID)
	buf = wire.AppendString(buf, 2, n.IPAddress)
	if n.Location != nil {
		buf = wire.AppendMessage(buf, 3, n.Location.Marshal())
	}
	for _, s := range n.Services {
		buf = wire.AppendMessage(buf, 4, s.Marshal())
	}
	return buf
}

// Unmarshal decodes a node contact record.
func (n *NodeInfo) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			n.NodeID, err = d.Bytes()
		case 2:
			n.IPAddress, err = d.String()
		case 3:
			n.Location = &GPSLocation{}
			err = unmarshalField(d, n.Location)
		case 4:
			s := &ServiceInfo{}
			if err = unmarshalField(d, s); err == nil {
				n.Services = append(n.Services, s)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a neighborhood change batch.
func (n *NeighbourhoodChangedNotification) Marshal() []byte {
	var buf []byte
	for _, c := range n.Changes {
		buf = wire.AppendMessage(buf, 1, c.Marshal())
	}
	return buf
}

// Unmarshal decodes a neighborhood change batch.
func (n *NeighbourhoodChangedNotification) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			c := &NeighbourhoodChange{}
			if err = unmarshalField(d, c); err == nil {
				n.Changes = append(n.Changes, c)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes one neighborhood delta.
func (c *NeighbourhoodChange) Marshal() []byte {
	var buf []byte
	if c.AddedNode != nil {
		buf = wire.AppendMessage(buf, 1, c.AddedNode.Marshal())
	}
	if c.UpdatedNode != nil {
		buf = wire.AppendMessage(buf, 2, c.UpdatedNode.Marshal())
	}
	buf = wire.AppendBytes(buf, 3, c.RemovedNodeID)
	return buf
}

// Unmarshal decodes one neighborhood delta.
func (c *NeighbourhoodChange) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			c.AddedNode = &NodeInfo{}
			err = unmarshalField(d, c.AddedNode)
		case 2:
			c.UpdatedNode = &NodeInfo{}
			err = unmarshalField(d, c.UpdatedNode)
		case 3:
			c.RemovedNodeID, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
