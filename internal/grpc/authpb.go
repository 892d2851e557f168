package grpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Wire contract of auth.AuthService. Messages are built at runtime from this
// descriptor so the client does not depend on generated stubs.
const (
	validateTokenMethod = "/auth.AuthService/ValidateToken"
	getUserMethod       = "/auth.AuthService/GetUser"
)

var (
	validateTokenRequest  protoreflect.MessageDescriptor
	validateTokenResponse protoreflect.MessageDescriptor
	getUserRequest        protoreflect.MessageDescriptor
	getUserResponse       protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(authFileProto(), nil)
	if err != nil {
		panic(fmt.Sprintf("auth descriptor: %v", err))
	}
	msgs := fd.Messages()
	validateTokenRequest = msgs.ByName("ValidateTokenRequest")
	validateTokenResponse = msgs.ByName("ValidateTokenResponse")
	getUserRequest = msgs.ByName("GetUserRequest")
	getUserResponse = msgs.ByName("GetUserResponse")
}

func authFileProto() *descriptorpb.FileDescriptorProto {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	i64 := descriptorpb.FieldDescriptorProto_TYPE_INT64
	boolean := descriptorpb.FieldDescriptorProto_TYPE_BOOL

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("auth/auth.proto"),
		Package: proto.String("auth"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("ValidateTokenRequest", field("token", 1, str)),
			message("ValidateTokenResponse", field("valid", 1, boolean), field("user_id", 2, i64)),
			message("GetUserRequest", field("user_id", 1, i64)),
			message("GetUserResponse", field("id", 1, i64), field("username", 2, str)),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("AuthService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("ValidateToken", ".auth.ValidateTokenRequest", ".auth.ValidateTokenResponse"),
				method("GetUser", ".auth.GetUserRequest", ".auth.GetUserResponse"),
			},
		}},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func method(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(in),
		OutputType: proto.String(out),
	}
}

func newMessage(md protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(md)
}

func getField(m *dynamicpb.Message, name string) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name)))
}

func setField(m *dynamicpb.Message, name string, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), v)
}
